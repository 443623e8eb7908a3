package webserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/ledger"
	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/treasury"
)

type Treasury struct {
	svc     *treasury.Service
	balance *ledger.Balance
}

func NewTreasury(svc *treasury.Service, balance *ledger.Balance) Treasury {
	return Treasury{svc: svc, balance: balance}
}

// Me returns the caller's wallet balance.
func (h Treasury) Me(c *gin.Context) {
	coins, err := h.balance.UserBalance(userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": userID(c), "coins": coins})
}

func (h Treasury) Donate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Amount  int64  `json:"amount" binding:"required,min=1"`
		Message string `json:"message" binding:"max=512"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	donation, err := h.svc.Donate(userID(c), id, req.Amount, sanitize(req.Message))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, donation)
}

func (h Treasury) Subscribe(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Amount int64 `json:"amount" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	sub, err := h.svc.Subscribe(userID(c), id, req.Amount)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h Treasury) CancelSubscription(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.CancelSubscription(id, userID(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Treasury) Withdraw(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Amount int64 `json:"amount" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	record, err := h.svc.Withdraw(id, userID(c), req.Amount)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h Treasury) Withdrawals(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rows, err := h.svc.Withdrawals(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}
