package webserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/errs"
	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/ledger"
	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/types"
)

type Projects struct {
	db      *gorm.DB
	balance *ledger.Balance
	contrib *ledger.Contributions
}

func NewProjects(db *gorm.DB, balance *ledger.Balance, contrib *ledger.Contributions) Projects {
	return Projects{db: db, balance: balance, contrib: contrib}
}

func pathID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"err": "bad id"})
		return 0, false
	}
	return id, true
}

// Create makes a project with the caller as creator and sole member, and
// seeds the contribution rate row. All three rows are one transaction.
func (p Projects) Create(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required,min=2,max=128"`
		Description string `json:"description" binding:"max=10000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	uid := userID(c)
	project := types.Project{
		Name:        req.Name,
		Description: sanitize(req.Description),
		CreatorID:   uid,
	}
	err := p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&project).Error; err != nil {
			return err
		}
		if err := tx.Create(&types.ProjectMember{
			ProjectID: project.ID,
			UserID:    uid,
			Role:      "creator",
		}).Error; err != nil {
			return err
		}
		rates := ledger.DefaultRates(project.ID)
		return tx.Create(&rates).Error
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (p Projects) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var project types.Project
	if err := p.db.First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, errs.ErrNotFound)
			return
		}
		fail(c, err)
		return
	}
	var members []types.ProjectMember
	p.db.Where("project_id = ?", id).Find(&members)
	c.JSON(http.StatusOK, gin.H{"project": project, "members": members})
}

func (p Projects) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	uid := userID(c)
	err := p.db.Transaction(func(tx *gorm.DB) error {
		var project types.Project
		if err := tx.First(&project, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrNotFound
			}
			return err
		}
		if project.CreatorID != uid {
			return errs.ErrForbidden
		}
		var propIDs []uint64
		if err := tx.Model(&types.Proposal{}).Where("project_id = ?", id).Pluck("id", &propIDs).Error; err != nil {
			return err
		}
		if len(propIDs) > 0 {
			// Lock the proposal rows first so in-flight pledges serialize
			// against the teardown, then mark refundable escrow with a write
			// before reading it back. Closed bounties were already paid out.
			if err := tx.Model(&types.Proposal{}).
				Where("project_id = ?", id).
				Update("updated_at", time.Now()).Error; err != nil {
				return err
			}
			if err := tx.Model(&types.Bounty{}).
				Where("proposal_id IN ? AND status IN ?", propIDs,
					[]string{types.BountyActive, types.BountyPending}).
				Update("status", types.BountyPending).Error; err != nil {
				return err
			}
			var bounties []types.Bounty
			if err := tx.Where("proposal_id IN ? AND status = ?", propIDs,
				types.BountyPending).Find(&bounties).Error; err != nil {
				return err
			}
			for _, b := range bounties {
				if _, err := p.balance.CreditUser(tx, b.UserID, b.Amount); err != nil {
					return err
				}
			}
			if err := tx.Where("proposal_id IN ?", propIDs).Delete(&types.Bounty{}).Error; err != nil {
				return err
			}
			if err := tx.Where("proposal_id IN ?", propIDs).Delete(&types.ProposalLike{}).Error; err != nil {
				return err
			}
		}
		for _, model := range []interface{}{
			&types.Proposal{}, &types.ProjectMember{}, &types.ContributionRates{}, &types.ProjectUpdate{},
		} {
			if err := tx.Where("project_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&types.Project{}, id).Error
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddMember lets the creator add a user to the member set.
func (p Projects) AddMember(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		UserID uint64 `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	var project types.Project
	if err := p.db.First(&project, id).Error; err != nil {
		fail(c, errs.ErrNotFound)
		return
	}
	if project.CreatorID != userID(c) {
		fail(c, errs.ErrForbidden)
		return
	}
	var user types.User
	if err := p.db.First(&user, req.UserID).Error; err != nil {
		fail(c, errs.ErrNotFound)
		return
	}
	var existing types.ProjectMember
	err := p.db.First(&existing, "project_id = ? AND user_id = ?", id, req.UserID).Error
	if err == nil {
		c.JSON(http.StatusConflict, gin.H{"err": "already a member"})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, err)
		return
	}
	member := types.ProjectMember{ProjectID: id, UserID: req.UserID, Role: "member"}
	if err := p.db.Create(&member).Error; err != nil {
		// a concurrent insert can still beat the check above
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"err": "already a member"})
			return
		}
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

func (p Projects) Updates(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var updates []types.ProjectUpdate
	p.db.Where("project_id = ?", id).Order("created_at desc").Find(&updates)
	c.JSON(http.StatusOK, updates)
}

func (p Projects) Rates(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rates, err := p.contrib.Rates(nil, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rates)
}

// SetRates applies a partial rate update. Creator only.
func (p Projects) SetRates(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var project types.Project
	if err := p.db.First(&project, id).Error; err != nil {
		fail(c, errs.ErrNotFound)
		return
	}
	if project.CreatorID != userID(c) {
		fail(c, errs.ErrForbidden)
		return
	}
	var upd ledger.RatesUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	rates, err := p.contrib.SetRates(nil, id, upd)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rates)
}

func (p Projects) Contributions(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rows, err := p.contrib.ListByProject(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}
