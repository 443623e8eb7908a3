package ledger

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/errs"
	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/types"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(types.Migrate()...))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, nickname string, coins int64) types.User {
	t.Helper()
	user := types.User{
		Nickname:     nickname,
		Email:        nickname + "@example.com",
		PasswordHash: "x",
		Coins:        coins,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func seedProject(t *testing.T, db *gorm.DB, creatorID uint64, treasury int64) types.Project {
	t.Helper()
	project := types.Project{Name: "game", CreatorID: creatorID, Treasury: treasury}
	require.NoError(t, db.Create(&project).Error)
	require.NoError(t, db.Create(&types.ProjectMember{
		ProjectID: project.ID, UserID: creatorID, Role: "creator",
	}).Error)
	rates := DefaultRates(project.ID)
	require.NoError(t, db.Create(&rates).Error)
	return project
}

func TestDebitUserGuardsBalance(t *testing.T) {
	db := testDB(t)
	balance := NewBalance(db)
	user := seedUser(t, db, "alice", 50)

	_, err := balance.DebitUser(nil, user.ID, 100)
	require.ErrorIs(t, err, errs.ErrInsufficientFunds)

	coins, err := balance.UserBalance(user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 50, coins)

	after, err := balance.DebitUser(nil, user.ID, 30)
	require.NoError(t, err)
	require.EqualValues(t, 20, after)
}

func TestBalanceUnknownEntities(t *testing.T) {
	db := testDB(t)
	balance := NewBalance(db)

	_, err := balance.CreditUser(nil, 999, 10)
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = balance.DebitTreasury(nil, 999, 10)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTreasuryDebitGuard(t *testing.T) {
	db := testDB(t)
	balance := NewBalance(db)
	creator := seedUser(t, db, "bob", 0)
	project := seedProject(t, db, creator.ID, 30)

	_, err := balance.DebitTreasury(nil, project.ID, 40)
	require.ErrorIs(t, err, errs.ErrInsufficientFunds)

	var reloaded types.Project
	require.NoError(t, db.First(&reloaded, project.ID).Error)
	require.EqualValues(t, 30, reloaded.Treasury)

	after, err := balance.DebitTreasury(nil, project.ID, 30)
	require.NoError(t, err)
	require.EqualValues(t, 0, after)
}

func TestContributionUpsert(t *testing.T) {
	db := testDB(t)
	contrib := NewContributions(db)
	user := seedUser(t, db, "carol", 0)
	project := seedProject(t, db, user.ID, 0)

	require.NoError(t, contrib.Credit(nil, project.ID, user.ID, 2.5))
	require.NoError(t, contrib.Credit(nil, project.ID, user.ID, 1.5))

	score, err := contrib.Score(project.ID, user.ID)
	require.NoError(t, err)
	require.InDelta(t, 4.0, score, 1e-9)

	// zero credit is a no-op and creates no row
	other := seedUser(t, db, "dave", 0)
	require.NoError(t, contrib.Credit(nil, project.ID, other.ID, 0))
	var n int64
	require.NoError(t, db.Model(&types.Contribution{}).
		Where("project_id = ? AND user_id = ?", project.ID, other.ID).Count(&n).Error)
	require.EqualValues(t, 0, n)
}

func TestContributionNegativeRejected(t *testing.T) {
	db := testDB(t)
	contrib := NewContributions(db)
	require.ErrorIs(t, contrib.Credit(nil, 1, 1, -1), errs.ErrInvalid)
}

func TestSetRatesPartial(t *testing.T) {
	db := testDB(t)
	contrib := NewContributions(db)
	user := seedUser(t, db, "erin", 0)
	project := seedProject(t, db, user.ID, 0)

	v := 0.8
	rates, err := contrib.SetRates(nil, project.ID, RatesUpdate{BountyCompletion: &v})
	require.NoError(t, err)
	require.InDelta(t, 0.8, rates.BountyCompletion, 1e-9)
	// untouched fields keep their seeded values
	require.InDelta(t, DefaultRates(0).ProposalCreation, rates.ProposalCreation, 1e-9)
}

func TestSetRatesEmptyUpdateIsIdempotent(t *testing.T) {
	db := testDB(t)
	contrib := NewContributions(db)
	user := seedUser(t, db, "frank", 0)
	project := seedProject(t, db, user.ID, 0)

	before, err := contrib.Rates(nil, project.ID)
	require.NoError(t, err)

	after, err := contrib.SetRates(nil, project.ID, RatesUpdate{})
	require.NoError(t, err)
	require.Equal(t, before.ProposalCreation, after.ProposalCreation)
	require.Equal(t, before.BountyCreation, after.BountyCreation)
	require.Equal(t, before.BountyCompletion, after.BountyCompletion)
}

func TestSetRatesMissingProject(t *testing.T) {
	db := testDB(t)
	contrib := NewContributions(db)

	v := 1.0
	_, err := contrib.SetRates(nil, 42, RatesUpdate{ProposalCreation: &v})
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = contrib.Rates(nil, 42)
	require.ErrorIs(t, err, errs.ErrNotFound)
}
