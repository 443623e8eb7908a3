package webserver

import (
	"html"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"

	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/proposals"
)

// Strict sanitizer for user-written markdown bodies.
var sanitizer = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AllowElements("p", "br", "strong", "em", "code", "pre", "blockquote")
	p.AllowElements("ul", "ol", "li")
	p.AllowElements("h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowAttrs("href").OnElements("a")
	p.RequireParseableURLs(true)
	p.RequireNoFollowOnLinks(true)
	return p
}()

func sanitize(body string) string {
	return sanitizer.Sanitize(body)
}

type Proposals struct {
	svc *proposals.Service
}

func NewProposals(svc *proposals.Service) Proposals {
	return Proposals{svc: svc}
}

func (h Proposals) Create(c *gin.Context) {
	var req struct {
		ProjectID   uint64 `json:"projectId" binding:"required"`
		Title       string `json:"title" binding:"required,min=1,max=255"`
		Description string `json:"description" binding:"max=10000"`
		Category    string `json:"category" binding:"max=64"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	prop, err := h.svc.Create(req.ProjectID, userID(c),
		html.EscapeString(req.Title), sanitize(req.Description), html.EscapeString(req.Category))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, prop)
}

func (h Proposals) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	prop, err := h.svc.Get(id)
	if err != nil {
		fail(c, err)
		return
	}
	likes, _ := h.svc.LikeCount(id)
	c.JSON(http.StatusOK, gin.H{"proposal": prop, "likes": likes})
}

func (h Proposals) List(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	props, err := h.svc.ListByProject(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, props)
}

func (h Proposals) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Title       string `json:"title" binding:"required,min=1,max=255"`
		Description string `json:"description" binding:"max=10000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	prop, err := h.svc.Update(id, userID(c), html.EscapeString(req.Title), sanitize(req.Description))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, prop)
}

func (h Proposals) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(id, userID(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Transition drives the proposal state machine with one of the four
// guarded actions.
func (h Proposals) Transition(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Action string `json:"action" binding:"required,oneof=queue unqueue complete close"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	uid := userID(c)
	var err error
	var prop interface{}
	switch req.Action {
	case "queue":
		prop, err = h.svc.Queue(id, uid)
	case "unqueue":
		prop, err = h.svc.Unqueue(id, uid)
	case "complete":
		prop, err = h.svc.Complete(id, uid)
	case "close":
		prop, err = h.svc.Close(id, uid)
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, prop)
}

func (h Proposals) Like(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	liked, err := h.svc.ToggleLike(id, userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": liked})
}

func (h Proposals) Pledge(c *gin.Context) {
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
	bounty, err := h.svc.Pledge(id, userID(c), req.Amount)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, bounty)
}

func (h Proposals) Bounties(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rows, err := h.svc.Bounties(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h Proposals) ConfirmBounty(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	bounty, err := h.svc.ConfirmBounty(id, userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, bounty)
}
