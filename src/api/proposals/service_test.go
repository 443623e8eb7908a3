package proposals

import (
	"errors"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/errs"
	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/ledger"
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

func testService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testDB(t)
	return New(db, ledger.NewBalance(db), ledger.NewContributions(db), nil), db
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

func seedProject(t *testing.T, db *gorm.DB, creatorID uint64, rates types.ContributionRates) types.Project {
	t.Helper()
	project := types.Project{Name: "game", CreatorID: creatorID}
	require.NoError(t, db.Create(&project).Error)
	require.NoError(t, db.Create(&types.ProjectMember{
		ProjectID: project.ID, UserID: creatorID, Role: "creator",
	}).Error)
	rates.ProjectID = project.ID
	require.NoError(t, db.Create(&rates).Error)
	return project
}

func coins(t *testing.T, db *gorm.DB, userID uint64) int64 {
	t.Helper()
	var user types.User
	require.NoError(t, db.First(&user, userID).Error)
	return user.Coins
}

func score(t *testing.T, db *gorm.DB, projectID, userID uint64) float64 {
	t.Helper()
	var row types.Contribution
	err := db.First(&row, "project_id = ? AND user_id = ?", projectID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0
	}
	require.NoError(t, err)
	return row.Score
}

func TestCreateCreditsCreator(t *testing.T) {
	svc, db := testService(t)
	creator := seedUser(t, db, "alice", 0)
	project := seedProject(t, db, creator.ID, types.ContributionRates{ProposalCreation: 5})

	prop, err := svc.Create(project.ID, creator.ID, "Add boss fight", "a big one", "feature")
	require.NoError(t, err)
	require.Equal(t, types.ProposalOpen, prop.Status)
	require.InDelta(t, 5, score(t, db, project.ID, creator.ID), 1e-9)
}

func TestCreateUnknownProject(t *testing.T) {
	svc, db := testService(t)
	user := seedUser(t, db, "alice", 0)

	_, err := svc.Create(999, user.ID, "nope", "", "")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCreateRequiresTitle(t *testing.T) {
	svc, _ := testService(t)
	_, err := svc.Create(1, 1, "", "", "")
	require.ErrorIs(t, err, errs.ErrInvalid)
}

func TestQueueRecordsMetadata(t *testing.T) {
	svc, db := testService(t)
	creator := seedUser(t, db, "alice", 0)
	worker := seedUser(t, db, "bob", 0)
	project := seedProject(t, db, creator.ID, types.ContributionRates{})
	prop, err := svc.Create(project.ID, creator.ID, "task", "", "")
	require.NoError(t, err)

	queued, err := svc.Queue(prop.ID, worker.ID)
	require.NoError(t, err)
	require.Equal(t, types.ProposalQueued, queued.Status)
	require.NotNil(t, queued.QueuedBy)
	require.Equal(t, worker.ID, *queued.QueuedBy)
	require.Equal(t, "bob", queued.QueuedByNickname)
	require.NotNil(t, queued.QueuedAt)

	// queueing twice fails on the status guard
	_, err = svc.Queue(prop.ID, worker.ID)
	require.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestUnqueuePermissions(t *testing.T) {
	svc, db := testService(t)
	creator := seedUser(t, db, "alice", 0)
	worker := seedUser(t, db, "bob", 0)
	outsider := seedUser(t, db, "mallory", 0)
	project := seedProject(t, db, creator.ID, types.ContributionRates{})
	prop, err := svc.Create(project.ID, creator.ID, "task", "", "")
	require.NoError(t, err)

	_, err = svc.Queue(prop.ID, worker.ID)
	require.NoError(t, err)

	_, err = svc.Unqueue(prop.ID, outsider.ID)
	require.ErrorIs(t, err, errs.ErrForbidden)

	back, err := svc.Unqueue(prop.ID, worker.ID)
	require.NoError(t, err)
	require.Equal(t, types.ProposalOpen, back.Status)
	require.Nil(t, back.QueuedBy)
	require.Empty(t, back.QueuedByNickname)
	require.Nil(t, back.QueuedAt)

	_, err = svc.Unqueue(prop.ID, worker.ID)
	require.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestCompleteFanOut(t *testing.T) {
	svc, db := testService(t)
	creator := seedUser(t, db, "alice", 0)
	project := seedProject(t, db, creator.ID, types.ContributionRates{BountyCompletion: 0.8})
	prop, err := svc.Create(project.ID, creator.ID, "task", "", "")
	require.NoError(t, err)

	pledgers := []types.User{
		seedUser(t, db, "p1", 100),
		seedUser(t, db, "p2", 100),
		seedUser(t, db, "p3", 100),
	}
	amounts := []int64{10, 20, 30}
	for i, u := range pledgers {
		_, err := svc.Pledge(prop.ID, u.ID, amounts[i])
		require.NoError(t, err)
	}

	done, err := svc.Complete(prop.ID, creator.ID)
	require.NoError(t, err)
	require.Equal(t, types.ProposalCompleted, done.Status)

	expected := []float64{8, 16, 24}
	for i, u := range pledgers {
		require.InDelta(t, expected[i], score(t, db, project.ID, u.ID), 1e-9)
	}

	var active int64
	require.NoError(t, db.Model(&types.Bounty{}).
		Where("proposal_id = ? AND status = ?", prop.ID, types.BountyActive).Count(&active).Error)
	require.EqualValues(t, 0, active)

	var pending int64
	require.NoError(t, db.Model(&types.Bounty{}).
		Where("proposal_id = ? AND status = ?", prop.ID, types.BountyPending).Count(&pending).Error)
	require.EqualValues(t, 3, pending)

	// a project update entry was appended
	var updates int64
	require.NoError(t, db.Model(&types.ProjectUpdate{}).
		Where("project_id = ?", project.ID).Count(&updates).Error)
	require.EqualValues(t, 1, updates)
}

func TestCompleteCreatorOnly(t *testing.T) {
	svc, db := testService(t)
	creator := seedUser(t, db, "alice", 0)
	other := seedUser(t, db, "bob", 0)
	project := seedProject(t, db, creator.ID, types.ContributionRates{})
	prop, err := svc.Create(project.ID, other.ID, "task", "", "")
	require.NoError(t, err)

	// even the proposal creator cannot complete; only the project creator can
	_, err = svc.Complete(prop.ID, other.ID)
	require.ErrorIs(t, err, errs.ErrForbidden)

	_, err = svc.Complete(prop.ID, creator.ID)
	require.NoError(t, err)
}

func TestCompletedIsTerminal(t *testing.T) {
	svc, db := testService(t)
	creator := seedUser(t, db, "alice", 0)
	project := seedProject(t, db, creator.ID, types.ContributionRates{})
	prop, err := svc.Create(project.ID, creator.ID, "task", "", "")
	require.NoError(t, err)

	_, err = svc.Complete(prop.ID, creator.ID)
	require.NoError(t, err)

	_, err = svc.Queue(prop.ID, creator.ID)
	require.ErrorIs(t, err, errs.ErrInvalidState)
	_, err = svc.Close(prop.ID, creator.ID)
	require.ErrorIs(t, err, errs.ErrInvalidState)
	_, err = svc.Complete(prop.ID, creator.ID)
	require.ErrorIs(t, err, errs.ErrInvalidState)
	_, err = svc.Update(prop.ID, creator.ID, "new title", "")
	require.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestCloseCreatorOnlyNoMoney(t *testing.T) {
	svc, db := testService(t)
	creator := seedUser(t, db, "alice", 100)
	other := seedUser(t, db, "bob", 0)
	project := seedProject(t, db, creator.ID, types.ContributionRates{})
	prop, err := svc.Create(project.ID, creator.ID, "task", "", "")
	require.NoError(t, err)

	_, err = svc.Close(prop.ID, other.ID)
	require.ErrorIs(t, err, errs.ErrForbidden)

	closed, err := svc.Close(prop.ID, creator.ID)
	require.NoError(t, err)
	require.Equal(t, types.ProposalClosed, closed.Status)
	require.EqualValues(t, 100, coins(t, db, creator.ID))
}

func TestTransitionUnknownProposal(t *testing.T) {
	svc, db := testService(t)
	user := seedUser(t, db, "alice", 0)

	_, err := svc.Queue(999, user.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	_, err = svc.Complete(999, user.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDeleteRefundsEscrow(t *testing.T) {
	svc, db := testService(t)
	creator := seedUser(t, db, "alice", 0)
	pledger := seedUser(t, db, "bob", 100)
	project := seedProject(t, db, creator.ID, types.ContributionRates{})
	prop, err := svc.Create(project.ID, creator.ID, "task", "", "")
	require.NoError(t, err)

	_, err = svc.Pledge(prop.ID, pledger.ID, 40)
	require.NoError(t, err)
	require.EqualValues(t, 60, coins(t, db, pledger.ID))

	require.NoError(t, svc.Delete(prop.ID, creator.ID))
	require.EqualValues(t, 100, coins(t, db, pledger.ID))

	var n int64
	require.NoError(t, db.Model(&types.Bounty{}).Where("proposal_id = ?", prop.ID).Count(&n).Error)
	require.EqualValues(t, 0, n)
	_, err = svc.Get(prop.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDeleteRefundsPendingSkipsPaid(t *testing.T) {
	svc, db := testService(t)
	creator := seedUser(t, db, "alice", 0)
	worker := seedUser(t, db, "bob", 0)
	p1 := seedUser(t, db, "p1", 50)
	p2 := seedUser(t, db, "p2", 50)
	project := seedProject(t, db, creator.ID, types.ContributionRates{})
	prop, err := svc.Create(project.ID, creator.ID, "task", "", "")
	require.NoError(t, err)

	_, err = svc.Pledge(prop.ID, p1.ID, 20)
	require.NoError(t, err)
	_, err = svc.Pledge(prop.ID, p2.ID, 30)
	require.NoError(t, err)
	_, err = svc.Queue(prop.ID, worker.ID)
	require.NoError(t, err)
	_, err = svc.Complete(prop.ID, creator.ID)
	require.NoError(t, err)

	// p1 confirms; that escrow is paid to the assignee and closed
	bounties, err := svc.Bounties(prop.ID)
	require.NoError(t, err)
	for _, b := range bounties {
		if b.UserID == p1.ID {
			_, err = svc.ConfirmBounty(b.ID, p1.ID)
			require.NoError(t, err)
		}
	}
	require.EqualValues(t, 20, coins(t, db, worker.ID))

	// delete refunds only the still-pending escrow; the paid bounty is
	// settled and must not come back
	require.NoError(t, svc.Delete(prop.ID, creator.ID))
	require.EqualValues(t, 30, coins(t, db, p1.ID))
	require.EqualValues(t, 50, coins(t, db, p2.ID))
	require.EqualValues(t, 20, coins(t, db, worker.ID))

	var n int64
	require.NoError(t, db.Model(&types.Bounty{}).Where("proposal_id = ?", prop.ID).Count(&n).Error)
	require.EqualValues(t, 0, n)
}

func TestToggleLike(t *testing.T) {
	svc, db := testService(t)
	creator := seedUser(t, db, "alice", 0)
	project := seedProject(t, db, creator.ID, types.ContributionRates{})
	prop, err := svc.Create(project.ID, creator.ID, "task", "", "")
	require.NoError(t, err)

	liked, err := svc.ToggleLike(prop.ID, creator.ID)
	require.NoError(t, err)
	require.True(t, liked)

	n, err := svc.LikeCount(prop.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	liked, err = svc.ToggleLike(prop.ID, creator.ID)
	require.NoError(t, err)
	require.False(t, liked)

	n, err = svc.LikeCount(prop.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}
