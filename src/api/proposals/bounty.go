package proposals

import (
	"errors"
	"time"

	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/errs"
	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/types"
	"gorm.io/gorm"
)

// Pledge escrows coins against an open proposal. The debit and the bounty
// row are one transaction: if either fails nothing moves. The pledger is
// credited contribution at the bountyCreation rate immediately, not on
// completion.
func (s *Service) Pledge(proposalID, userID uint64, amount int64) (types.Bounty, error) {
	if amount <= 0 {
		return types.Bounty{}, errs.ErrInvalid
	}
	var bounty types.Bounty
	err := s.db.Transaction(func(tx *gorm.DB) error {
		// Re-check openness with a write, not a read: the UPDATE takes the
		// proposal's row lock, so a concurrent Complete or Delete either
		// committed first (zero rows here) or waits until this pledge commits.
		res := tx.Model(&types.Proposal{}).
			Where("id = ? AND status = ?", proposalID, types.ProposalOpen).
			Update("updated_at", time.Now())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return s.transitionFailure(tx, proposalID)
		}
		var prop types.Proposal
		if err := tx.First(&prop, proposalID).Error; err != nil {
			return err
		}
		if _, err := s.balance.DebitUser(tx, userID, amount); err != nil {
			return err
		}
		bounty = types.Bounty{
			ProposalID: proposalID,
			UserID:     userID,
			Amount:     amount,
			Status:     types.BountyActive,
		}
		if err := tx.Create(&bounty).Error; err != nil {
			return err
		}
		rates, err := s.contrib.Rates(tx, prop.ProjectID)
		if err != nil {
			return err
		}
		return s.contrib.Credit(tx, prop.ProjectID, userID, rates.BountyCreation*float64(amount))
	})
	if err != nil {
		return types.Bounty{}, err
	}
	s.publish(map[string]interface{}{
		"event":    "bounty_pledged",
		"proposal": proposalID,
		"user":     userID,
		"amount":   amount,
	})
	return bounty, nil
}

// ConfirmBounty releases a pending bounty's escrow. Only the pledger may
// confirm; the coins go to the proposal's assignee, the user who had the
// proposal queued when it completed, or the proposal creator when nobody
// did.
func (s *Service) ConfirmBounty(bountyID, actorID uint64) (types.Bounty, error) {
	var bounty types.Bounty
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&bounty, bountyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrNotFound
			}
			return err
		}
		if actorID != bounty.UserID {
			return errs.ErrForbidden
		}
		var prop types.Proposal
		if err := tx.First(&prop, bounty.ProposalID).Error; err != nil {
			return err
		}
		res := tx.Model(&types.Bounty{}).
			Where("id = ? AND status = ?", bountyID, types.BountyPending).
			Update("status", types.BountyClosed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.ErrInvalidState
		}
		payee := prop.CreatorID
		if prop.QueuedBy != nil {
			payee = *prop.QueuedBy
		}
		if _, err := s.balance.CreditUser(tx, payee, bounty.Amount); err != nil {
			return err
		}
		return tx.First(&bounty, bountyID).Error
	})
	if err != nil {
		return types.Bounty{}, err
	}
	return bounty, nil
}

// Bounties lists a proposal's bounties, oldest first.
func (s *Service) Bounties(proposalID uint64) ([]types.Bounty, error) {
	var rows []types.Bounty
	err := s.db.Where("proposal_id = ?", proposalID).Order("created_at asc").Find(&rows).Error
	return rows, err
}
