// Package ledger holds the coin balance store and the contribution ledger.
// Both are explicit service objects over the database; nothing in the
// platform touches balances except through them.
package ledger

import (
	"errors"

	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/errs"
	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/types"
	"gorm.io/gorm"
)

// Balance is the authoritative store for user wallets and project
// treasuries. Every mutation is a single guarded UPDATE, so concurrent
// debits can never both pass a stale read. Callers composing a balance
// move with other writes pass their transaction handle; a nil tx runs
// against the base connection.
type Balance struct {
	db *gorm.DB
}

func NewBalance(db *gorm.DB) *Balance {
	return &Balance{db: db}
}

func (b *Balance) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return b.db
}

// CreditUser adds amount to a user's wallet and returns the new balance.
func (b *Balance) CreditUser(tx *gorm.DB, userID uint64, amount int64) (int64, error) {
	if amount < 0 {
		return 0, errs.ErrInvalid
	}
	dbh := b.handle(tx)
	res := dbh.Model(&types.User{}).
		Where("id = ?", userID).
		Update("coins", gorm.Expr("coins + ?", amount))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, errs.ErrNotFound
	}
	return b.userCoins(dbh, userID)
}

// DebitUser removes amount from a user's wallet. The sufficiency check is
// part of the UPDATE itself; a short balance returns ErrInsufficientFunds
// with no mutation.
func (b *Balance) DebitUser(tx *gorm.DB, userID uint64, amount int64) (int64, error) {
	if amount < 0 {
		return 0, errs.ErrInvalid
	}
	dbh := b.handle(tx)
	res := dbh.Model(&types.User{}).
		Where("id = ? AND coins >= ?", userID, amount).
		Update("coins", gorm.Expr("coins - ?", amount))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := b.userCoins(dbh, userID); err != nil {
			return 0, err
		}
		return 0, errs.ErrInsufficientFunds
	}
	return b.userCoins(dbh, userID)
}

// CreditTreasury adds amount to a project's pooled balance.
func (b *Balance) CreditTreasury(tx *gorm.DB, projectID uint64, amount int64) (int64, error) {
	if amount < 0 {
		return 0, errs.ErrInvalid
	}
	dbh := b.handle(tx)
	res := dbh.Model(&types.Project{}).
		Where("id = ?", projectID).
		Update("treasury", gorm.Expr("treasury + ?", amount))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, errs.ErrNotFound
	}
	return b.treasuryCoins(dbh, projectID)
}

// DebitTreasury removes amount from a project's pooled balance, guarded the
// same way as DebitUser.
func (b *Balance) DebitTreasury(tx *gorm.DB, projectID uint64, amount int64) (int64, error) {
	if amount < 0 {
		return 0, errs.ErrInvalid
	}
	dbh := b.handle(tx)
	res := dbh.Model(&types.Project{}).
		Where("id = ? AND treasury >= ?", projectID, amount).
		Update("treasury", gorm.Expr("treasury - ?", amount))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := b.treasuryCoins(dbh, projectID); err != nil {
			return 0, err
		}
		return 0, errs.ErrInsufficientFunds
	}
	return b.treasuryCoins(dbh, projectID)
}

// UserBalance reads a wallet without mutating it.
func (b *Balance) UserBalance(userID uint64) (int64, error) {
	return b.userCoins(b.db, userID)
}

func (b *Balance) userCoins(dbh *gorm.DB, userID uint64) (int64, error) {
	var u types.User
	if err := dbh.Select("coins").First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, errs.ErrNotFound
		}
		return 0, err
	}
	return u.Coins, nil
}

func (b *Balance) treasuryCoins(dbh *gorm.DB, projectID uint64) (int64, error) {
	var p types.Project
	if err := dbh.Select("treasury").First(&p, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, errs.ErrNotFound
		}
		return 0, err
	}
	return p.Treasury, nil
}
