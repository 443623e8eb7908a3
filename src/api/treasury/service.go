// Package treasury moves coins between user wallets and project
// treasuries: donations, subscriptions and creator withdrawals.
package treasury

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/data"
	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/errs"
	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/ledger"
	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/types"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Service struct {
	db      *gorm.DB
	balance *ledger.Balance
	rdb     *redis.Client // nil disables event publishing
}

func New(db *gorm.DB, balance *ledger.Balance, rdb *redis.Client) *Service {
	return &Service{db: db, balance: balance, rdb: rdb}
}

// Donate moves coins from a donor to a project. The creator's wallet is
// always credited; when the project has more than one member the treasury
// is credited the same amount on top. Single-member projects skip the
// treasury entirely.
func (s *Service) Donate(fromID, projectID uint64, amount int64, message string) (types.Donation, error) {
	if amount <= 0 {
		return types.Donation{}, errs.ErrInvalid
	}
	var donation types.Donation
	err := s.db.Transaction(func(tx *gorm.DB) error {
		project, members, err := s.projectWithMembers(tx, projectID)
		if err != nil {
			return err
		}
		if _, err := s.balance.DebitUser(tx, fromID, amount); err != nil {
			return err
		}
		if _, err := s.balance.CreditUser(tx, project.CreatorID, amount); err != nil {
			return err
		}
		if members > 1 {
			if _, err := s.balance.CreditTreasury(tx, projectID, amount); err != nil {
				return err
			}
		}
		donation = types.Donation{
			FromID:    fromID,
			ToID:      project.CreatorID,
			ProjectID: projectID,
			Amount:    amount,
			Message:   message,
		}
		return tx.Create(&donation).Error
	})
	if err != nil {
		return types.Donation{}, err
	}
	s.publish(map[string]interface{}{
		"event":   "donation",
		"project": projectID,
		"from":    fromID,
		"amount":  amount,
	})
	return donation, nil
}

// Subscribe performs the first payment immediately, with the same money
// motion as a donation, and records the subscription. Recurring charges
// are an external scheduler concern; only NextPaymentAt is computed here.
func (s *Service) Subscribe(fromID, projectID uint64, amount int64) (types.Subscription, error) {
	if amount <= 0 {
		return types.Subscription{}, errs.ErrInvalid
	}
	var sub types.Subscription
	err := s.db.Transaction(func(tx *gorm.DB) error {
		project, members, err := s.projectWithMembers(tx, projectID)
		if err != nil {
			return err
		}
		if _, err := s.balance.DebitUser(tx, fromID, amount); err != nil {
			return err
		}
		if _, err := s.balance.CreditUser(tx, project.CreatorID, amount); err != nil {
			return err
		}
		if members > 1 {
			if _, err := s.balance.CreditTreasury(tx, projectID, amount); err != nil {
				return err
			}
		}
		sub = types.Subscription{
			FromID:        fromID,
			ToID:          project.CreatorID,
			ProjectID:     projectID,
			Amount:        amount,
			Active:        true,
			NextPaymentAt: time.Now().AddDate(0, 1, 0),
		}
		return tx.Create(&sub).Error
	})
	if err != nil {
		return types.Subscription{}, err
	}
	return sub, nil
}

// CancelSubscription deactivates a subscription. Owner only.
func (s *Service) CancelSubscription(id, actorID uint64) error {
	var sub types.Subscription
	if err := s.db.First(&sub, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.ErrNotFound
		}
		return err
	}
	if sub.FromID != actorID {
		return errs.ErrForbidden
	}
	return s.db.Model(&types.Subscription{}).Where("id = ?", id).Update("active", false).Error
}

// Withdraw moves coins from the treasury to the creator's wallet. Creator
// only; the treasury guard rejects overdrafts with no mutation.
func (s *Service) Withdraw(projectID, actorID uint64, amount int64) (types.WithdrawalRecord, error) {
	if amount <= 0 {
		return types.WithdrawalRecord{}, errs.ErrInvalid
	}
	var record types.WithdrawalRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var project types.Project
		if err := tx.First(&project, projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrNotFound
			}
			return err
		}
		if actorID != project.CreatorID {
			return errs.ErrForbidden
		}
		if _, err := s.balance.DebitTreasury(tx, projectID, amount); err != nil {
			return err
		}
		if _, err := s.balance.CreditUser(tx, actorID, amount); err != nil {
			return err
		}
		record = types.WithdrawalRecord{
			ProjectID: projectID,
			UserID:    actorID,
			Amount:    amount,
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return types.WithdrawalRecord{}, err
	}
	return record, nil
}

// Withdrawals lists a project's withdrawal history, newest first.
func (s *Service) Withdrawals(projectID uint64) ([]types.WithdrawalRecord, error) {
	var rows []types.WithdrawalRecord
	err := s.db.Where("project_id = ?", projectID).Order("created_at desc").Find(&rows).Error
	return rows, err
}

func (s *Service) projectWithMembers(tx *gorm.DB, projectID uint64) (types.Project, int64, error) {
	var project types.Project
	if err := tx.First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Project{}, 0, errs.ErrNotFound
		}
		return types.Project{}, 0, err
	}
	var members int64
	if err := tx.Model(&types.ProjectMember{}).Where("project_id = ?", projectID).Count(&members).Error; err != nil {
		return types.Project{}, 0, err
	}
	return project, members, nil
}

func (s *Service) publish(payload map[string]interface{}) {
	if s.rdb == nil {
		return
	}
	if err := data.PublishEvent(context.Background(), s.rdb, payload); err != nil {
		log.Printf("publish event: %v", err)
	}
}
