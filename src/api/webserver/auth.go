package webserver

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/auth"
)

type Auth struct {
	svc *auth.Service
}

func NewAuth(svc *auth.Service) Auth {
	return Auth{svc: svc}
}

func (a Auth) RequestCode(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	if err := a.svc.RequestCode(c, req.Email); err != nil {
		log.Printf("request code for %s: %v", req.Email, err)
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a Auth) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Nickname string `json:"nickname" binding:"required,min=2,max=64"`
		Password string `json:"password" binding:"required,min=8,max=128"`
		Code     string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	user, err := a.svc.Register(c, req.Email, req.Nickname, req.Password, req.Code)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "nickname": user.Nickname, "coins": user.Coins})
}

func (a Auth) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	token, err := a.svc.Login(req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
