// Package proposals owns the proposal state machine and the bounty escrow.
// Every compound operation runs inside one database transaction; status
// flips are guarded UPDATEs so concurrent transitions cannot interleave.
package proposals

import (
	"context"
	"errors"
	"fmt"
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
	contrib *ledger.Contributions
	rdb     *redis.Client // nil disables event publishing
}

func New(db *gorm.DB, balance *ledger.Balance, contrib *ledger.Contributions, rdb *redis.Client) *Service {
	return &Service{db: db, balance: balance, contrib: contrib, rdb: rdb}
}

// Create opens a proposal on a project and credits the creator at the
// project's proposalCreation rate.
func (s *Service) Create(projectID, creatorID uint64, title, description, category string) (types.Proposal, error) {
	if title == "" {
		return types.Proposal{}, errs.ErrInvalid
	}
	var prop types.Proposal
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var project types.Project
		if err := tx.First(&project, projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrNotFound
			}
			return err
		}
		prop = types.Proposal{
			ProjectID:   projectID,
			CreatorID:   creatorID,
			Title:       title,
			Description: description,
			Category:    category,
			Status:      types.ProposalOpen,
		}
		if err := tx.Create(&prop).Error; err != nil {
			return err
		}
		rates, err := s.contrib.Rates(tx, projectID)
		if err != nil {
			return err
		}
		return s.contrib.Credit(tx, projectID, creatorID, rates.ProposalCreation)
	})
	if err != nil {
		return types.Proposal{}, err
	}
	return prop, nil
}

// Get returns a proposal by id.
func (s *Service) Get(id uint64) (types.Proposal, error) {
	var prop types.Proposal
	if err := s.db.First(&prop, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Proposal{}, errs.ErrNotFound
		}
		return types.Proposal{}, err
	}
	return prop, nil
}

// ListByProject returns a project's proposals, newest first.
func (s *Service) ListByProject(projectID uint64) ([]types.Proposal, error) {
	var props []types.Proposal
	err := s.db.Where("project_id = ?", projectID).Order("created_at desc").Find(&props).Error
	return props, err
}

// Queue moves an open proposal to queued, recording who queued it. Any
// authenticated user may queue.
func (s *Service) Queue(id, actorID uint64) (types.Proposal, error) {
	var prop types.Proposal
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var actor types.User
		if err := tx.First(&actor, actorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrNotFound
			}
			return err
		}
		now := time.Now()
		res := tx.Model(&types.Proposal{}).
			Where("id = ? AND status = ?", id, types.ProposalOpen).
			Updates(map[string]interface{}{
				"status":             types.ProposalQueued,
				"queued_by":          actorID,
				"queued_by_nickname": actor.Nickname,
				"queued_at":          now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return s.transitionFailure(tx, id)
		}
		return tx.First(&prop, id).Error
	})
	if err != nil {
		return types.Proposal{}, err
	}
	return prop, nil
}

// Unqueue returns a queued proposal to open. Only the proposal creator or
// the user who queued it may unqueue.
func (s *Service) Unqueue(id, actorID uint64) (types.Proposal, error) {
	var prop types.Proposal
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&prop, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrNotFound
			}
			return err
		}
		if prop.Status != types.ProposalQueued {
			return errs.ErrInvalidState
		}
		if actorID != prop.CreatorID && (prop.QueuedBy == nil || *prop.QueuedBy != actorID) {
			return errs.ErrForbidden
		}
		res := tx.Model(&types.Proposal{}).
			Where("id = ? AND status = ?", id, types.ProposalQueued).
			Updates(map[string]interface{}{
				"status":             types.ProposalOpen,
				"queued_by":          nil,
				"queued_by_nickname": "",
				"queued_at":          nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.ErrInvalidState
		}
		return tx.First(&prop, id).Error
	})
	if err != nil {
		return types.Proposal{}, err
	}
	return prop, nil
}

// Complete finishes an open or queued proposal. Only the project creator
// may complete. Every active bounty moves to pending and its pledger is
// credited at the bountyCompletion rate; the escrowed coins are released
// later through ConfirmBounty. A project update entry is appended.
func (s *Service) Complete(id, actorID uint64) (types.Proposal, error) {
	var prop types.Proposal
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&prop, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrNotFound
			}
			return err
		}
		var project types.Project
		if err := tx.First(&project, prop.ProjectID).Error; err != nil {
			return err
		}
		if actorID != project.CreatorID {
			return errs.ErrForbidden
		}
		res := tx.Model(&types.Proposal{}).
			Where("id = ? AND status IN ?", id, []string{types.ProposalOpen, types.ProposalQueued}).
			Update("status", types.ProposalCompleted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.ErrInvalidState
		}
		rates, err := s.contrib.Rates(tx, prop.ProjectID)
		if err != nil {
			return err
		}
		// Flip with one UPDATE rather than a read-then-write loop: the UPDATE
		// sees every committed pledge, including ones newer than this
		// transaction's snapshot. Pending rows cannot predate completion, so
		// the follow-up read returns exactly the flipped set.
		if err := tx.Model(&types.Bounty{}).
			Where("proposal_id = ? AND status = ?", id, types.BountyActive).
			Update("status", types.BountyPending).Error; err != nil {
			return err
		}
		var bounties []types.Bounty
		if err := tx.Where("proposal_id = ? AND status = ?", id, types.BountyPending).Find(&bounties).Error; err != nil {
			return err
		}
		for _, b := range bounties {
			if err := s.contrib.Credit(tx, prop.ProjectID, b.UserID, rates.BountyCompletion*float64(b.Amount)); err != nil {
				return err
			}
		}
		update := types.ProjectUpdate{
			ProjectID:  prop.ProjectID,
			ProposalID: prop.ID,
			Body:       fmt.Sprintf("Proposal %q was completed", prop.Title),
		}
		if err := tx.Create(&update).Error; err != nil {
			return err
		}
		return tx.First(&prop, id).Error
	})
	if err != nil {
		return types.Proposal{}, err
	}
	s.publish(map[string]interface{}{
		"event":    "proposal_completed",
		"proposal": prop.ID,
		"project":  prop.ProjectID,
		"title":    prop.Title,
	})
	return prop, nil
}

// Close abandons an open proposal. Creator only, terminal, no coins move.
func (s *Service) Close(id, actorID uint64) (types.Proposal, error) {
	var prop types.Proposal
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&prop, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrNotFound
			}
			return err
		}
		if actorID != prop.CreatorID {
			return errs.ErrForbidden
		}
		res := tx.Model(&types.Proposal{}).
			Where("id = ? AND status = ?", id, types.ProposalOpen).
			Update("status", types.ProposalClosed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.ErrInvalidState
		}
		return tx.First(&prop, id).Error
	})
	if err != nil {
		return types.Proposal{}, err
	}
	return prop, nil
}

// Update edits title and description while the proposal is still open.
func (s *Service) Update(id, actorID uint64, title, description string) (types.Proposal, error) {
	if title == "" {
		return types.Proposal{}, errs.ErrInvalid
	}
	var prop types.Proposal
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&prop, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrNotFound
			}
			return err
		}
		if actorID != prop.CreatorID {
			return errs.ErrForbidden
		}
		res := tx.Model(&types.Proposal{}).
			Where("id = ? AND status = ?", id, types.ProposalOpen).
			Updates(map[string]interface{}{"title": title, "description": description})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.ErrInvalidState
		}
		return tx.First(&prop, id).Error
	})
	if err != nil {
		return types.Proposal{}, err
	}
	return prop, nil
}

// Delete removes a proposal in any status. Creator only. Coins still held
// in active or pending bounties go back to their pledgers before the
// bounty rows are cascaded.
func (s *Service) Delete(id, actorID uint64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var prop types.Proposal
		if err := tx.First(&prop, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrNotFound
			}
			return err
		}
		if actorID != prop.CreatorID {
			return errs.ErrForbidden
		}
		// Take the proposal's row lock before touching escrow so a concurrent
		// pledge cannot land between the refund and the row deletes.
		res := tx.Model(&types.Proposal{}).Where("id = ?", id).Update("updated_at", time.Now())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.ErrNotFound
		}
		// Mark refundable escrow with a write first; the UPDATE sees every
		// committed pledge and stamps the rows, so the read-back below
		// returns them even when they postdate this transaction's snapshot.
		// Closed bounties were already paid out and stay untouched.
		if err := tx.Model(&types.Bounty{}).
			Where("proposal_id = ? AND status IN ?", id,
				[]string{types.BountyActive, types.BountyPending}).
			Update("status", types.BountyPending).Error; err != nil {
			return err
		}
		var bounties []types.Bounty
		if err := tx.Where("proposal_id = ? AND status = ?", id, types.BountyPending).Find(&bounties).Error; err != nil {
			return err
		}
		for _, b := range bounties {
			if _, err := s.balance.CreditUser(tx, b.UserID, b.Amount); err != nil {
				return err
			}
		}
		if err := tx.Where("proposal_id = ?", id).Delete(&types.Bounty{}).Error; err != nil {
			return err
		}
		if err := tx.Where("proposal_id = ?", id).Delete(&types.ProposalLike{}).Error; err != nil {
			return err
		}
		return tx.Delete(&types.Proposal{}, id).Error
	})
}

// ToggleLike flips a user's like on a proposal and reports the new state.
func (s *Service) ToggleLike(id, userID uint64) (bool, error) {
	var liked bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var prop types.Proposal
		if err := tx.First(&prop, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrNotFound
			}
			return err
		}
		res := tx.Where("proposal_id = ? AND user_id = ?", id, userID).Delete(&types.ProposalLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			liked = false
			return nil
		}
		liked = true
		return tx.Create(&types.ProposalLike{ProposalID: id, UserID: userID}).Error
	})
	return liked, err
}

// LikeCount returns how many users currently like a proposal.
func (s *Service) LikeCount(id uint64) (int64, error) {
	var n int64
	err := s.db.Model(&types.ProposalLike{}).Where("proposal_id = ?", id).Count(&n).Error
	return n, err
}

// transitionFailure decides whether a zero-row guarded update means the
// proposal is missing or just in the wrong state.
func (s *Service) transitionFailure(tx *gorm.DB, id uint64) error {
	var n int64
	if err := tx.Model(&types.Proposal{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return errs.ErrInvalidState
}

func (s *Service) publish(payload map[string]interface{}) {
	if s.rdb == nil {
		return
	}
	if err := data.PublishEvent(context.Background(), s.rdb, payload); err != nil {
		log.Printf("publish event: %v", err)
	}
}
