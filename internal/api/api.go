// Package api serves the ledger over HTTP with gin.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-mint/pkg/ledger"
	"github.com/celerix-dev/celerix-mint/pkg/sdk"
)

type Handler struct {
	Ledger sdk.LedgerService
}

// Register mounts every route on g. Mutating routes run behind auth.
func (h *Handler) Register(g *gin.RouterGroup, auth gin.HandlerFunc) {
	g.GET("/health", h.Health)
	g.GET("/profiles", h.ListProfiles)
	g.GET("/profiles/:id", h.GetProfile)
	g.GET("/tokens/:id", h.GetToken)
	g.GET("/mint/daily/:id", h.Eligibility)
	g.GET("/holdings/:token/:id", h.Holding)

	w := g.Group("", auth)
	w.POST("/profiles", h.CreateProfile)
	w.PUT("/profiles/:id", h.UpdateProfile)
	w.POST("/profiles/:id/balance", h.AddBalance)
	w.POST("/tokens", h.CreateToken)
	w.POST("/mint/daily", h.RequestDailyMint)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrAlreadyClaimedToday):
		return http.StatusTooManyRequests
	case errors.Is(err, ledger.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusOf(err), gin.H{"error": err.Error(), "code": ledger.Code(err)})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": ledger.CodeInvalidArgument})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) CreateProfile(c *gin.Context) {
	var input sdk.ProfileParams
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.Ledger.CreateProfile(c.Request.Context(), Caller(c), input.Name, input.Age)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var input sdk.ProfileParams
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	owner := ledger.Identity(c.Param("id"))
	rec, err := h.Ledger.UpdateProfile(c.Request.Context(), Caller(c), owner, input.Name, input.Age)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) AddBalance(c *gin.Context) {
	var input struct {
		Amount uint64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	owner := ledger.Identity(c.Param("id"))
	rec, err := h.Ledger.AddBalance(c.Request.Context(), Caller(c), owner, input.Amount)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetProfile(c *gin.Context) {
	rec, err := h.Ledger.GetProfile(c.Request.Context(), ledger.Identity(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListProfiles(c *gin.Context) {
	list, err := h.Ledger.ListProfiles(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) CreateToken(c *gin.Context) {
	var input ledger.TokenParams
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	desc, err := h.Ledger.CreateToken(c.Request.Context(), Caller(c), input)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, desc)
}

func (h *Handler) GetToken(c *gin.Context) {
	desc, err := h.Ledger.GetToken(c.Request.Context(), ledger.Identity(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, desc)
}

func (h *Handler) RequestDailyMint(c *gin.Context) {
	grant, err := h.Ledger.RequestDailyMint(c.Request.Context(), Caller(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, grant)
}

func (h *Handler) Eligibility(c *gin.Context) {
	e, err := h.Ledger.Eligibility(c.Request.Context(), ledger.Identity(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *Handler) Holding(c *gin.Context) {
	token := ledger.Identity(c.Param("token"))
	holding, err := h.Ledger.Holding(c.Request.Context(), token, ledger.Identity(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, holding)
}
