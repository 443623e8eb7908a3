package ledger

import (
	"errors"
	"time"

	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/errs"
	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Contributions accumulates per-(project, user) contribution score and owns
// the per-project rate table. Scores only ever grow.
type Contributions struct {
	db *gorm.DB
}

func NewContributions(db *gorm.DB) *Contributions {
	return &Contributions{db: db}
}

func (c *Contributions) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return c.db
}

// DefaultRates is the template copied into every new project.
func DefaultRates(projectID uint64) types.ContributionRates {
	return types.ContributionRates{
		ProjectID:            projectID,
		ProposalCreation:     5,
		BountyCreation:       0.5,
		BountyCompletion:     1,
		OneTimeContribution:  0.1,
		LongTermContribution: 0.2,
	}
}

// Credit adds amount to the (project, user) score, creating the row on
// first credit. A zero amount is a no-op.
func (c *Contributions) Credit(tx *gorm.DB, projectID, userID uint64, amount float64) error {
	if amount < 0 {
		return errs.ErrInvalid
	}
	if amount == 0 {
		return nil
	}
	return c.handle(tx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "project_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"score":      gorm.Expr("score + ?", amount),
			"updated_at": time.Now(),
		}),
	}).Create(&types.Contribution{
		ProjectID: projectID,
		UserID:    userID,
		Score:     amount,
	}).Error
}

// Score reads the accumulated score, zero when no row exists yet.
func (c *Contributions) Score(projectID, userID uint64) (float64, error) {
	var row types.Contribution
	err := c.db.First(&row, "project_id = ? AND user_id = ?", projectID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.Score, nil
}

// ListByProject returns a project's contribution rows, highest score first.
func (c *Contributions) ListByProject(projectID uint64) ([]types.Contribution, error) {
	var rows []types.Contribution
	err := c.db.Where("project_id = ?", projectID).Order("score desc").Find(&rows).Error
	return rows, err
}

// Rates returns the project's rate row. Projects seed their row at
// creation, so a miss is a data-integrity failure surfaced as not found.
func (c *Contributions) Rates(tx *gorm.DB, projectID uint64) (types.ContributionRates, error) {
	var rates types.ContributionRates
	if err := c.handle(tx).First(&rates, "project_id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.ContributionRates{}, errs.ErrNotFound
		}
		return types.ContributionRates{}, err
	}
	return rates, nil
}

// RatesUpdate carries a partial rate change; nil fields keep their value.
type RatesUpdate struct {
	ProposalCreation     *float64 `json:"proposalCreation"`
	BountyCreation       *float64 `json:"bountyCreation"`
	BountyCompletion     *float64 `json:"bountyCompletion"`
	OneTimeContribution  *float64 `json:"oneTimeContribution"`
	LongTermContribution *float64 `json:"longTermContribution"`
}

func (u RatesUpdate) fields() (map[string]interface{}, error) {
	out := map[string]interface{}{}
	set := func(col string, v *float64) error {
		if v == nil {
			return nil
		}
		if *v < 0 {
			return errs.ErrInvalid
		}
		out[col] = *v
		return nil
	}
	for col, v := range map[string]*float64{
		"proposal_creation":      u.ProposalCreation,
		"bounty_creation":        u.BountyCreation,
		"bounty_completion":      u.BountyCompletion,
		"one_time_contribution":  u.OneTimeContribution,
		"long_term_contribution": u.LongTermContribution,
	} {
		if err := set(col, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SetRates applies a partial update to a project's rates and returns the
// resulting row. An empty update returns the current rates unchanged.
func (c *Contributions) SetRates(tx *gorm.DB, projectID uint64, upd RatesUpdate) (types.ContributionRates, error) {
	fields, err := upd.fields()
	if err != nil {
		return types.ContributionRates{}, err
	}
	dbh := c.handle(tx)
	if len(fields) > 0 {
		res := dbh.Model(&types.ContributionRates{}).
			Where("project_id = ?", projectID).
			Updates(fields)
		if res.Error != nil {
			return types.ContributionRates{}, res.Error
		}
		if res.RowsAffected == 0 {
			return types.ContributionRates{}, errs.ErrNotFound
		}
	}
	var rates types.ContributionRates
	if err := dbh.First(&rates, "project_id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.ContributionRates{}, errs.ErrNotFound
		}
		return types.ContributionRates{}, err
	}
	return rates, nil
}
