package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"adDecisioning/business/bandit"
	"adDecisioning/business/frequency"
	"adDecisioning/domain"
	"adDecisioning/pkg/config"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type (
	AdminHandler struct {
		validate  *validator.Validate
		configs   ConfigManager
		revisions RevisionStore
		bandit    BanditDebugger
		frequency FrequencyInspector
		pacing    PacingInspector
	}

	ConfigManager interface {
		Current() domain.DecisioningConfig
		Apply(next domain.DecisioningConfig) error
	}

	RevisionStore interface {
		SaveRevision(ctx context.Context, cfg domain.DecisioningConfig, appliedBy string) error
	}

	BanditDebugger interface {
		BuildContext(u domain.UserFeatures, c domain.ContextFeatures, now time.Time) bandit.Context
		Debug(ctx context.Context, bc bandit.Context, candidates []string) (domain.BanditDebug, error)
	}

	FrequencyInspector interface {
		Counts(ctx context.Context, userID, campaignID string) (frequency.Counts, error)
	}

	PacingInspector interface {
		SpentToday(ctx context.Context, campaignID string, now time.Time) (float64, error)
		Multiplier(ctx context.Context, campaignID string) (float64, error)
	}

	PacingStatus struct {
		CampaignID string  `json:"campaign_id"`
		SpentToday float64 `json:"spent_today"`
		Multiplier float64 `json:"multiplier"`
	}

	BanditDebugRequest struct {
		UserFeatures    domain.UserFeatures    `json:"user_features"`
		ContextFeatures domain.ContextFeatures `json:"context_features"`
		Candidates      []string               `json:"candidates" validate:"required,min=1,dive,required"`
	}
)

// NewAdminHandler takes an optional RevisionStore; nil skips persistence.
func NewAdminHandler(
	validate *validator.Validate,
	configs ConfigManager,
	revisions RevisionStore,
	debugger BanditDebugger,
	freq FrequencyInspector,
	pacing PacingInspector,
) *AdminHandler {
	return &AdminHandler{
		validate:  validate,
		configs:   configs,
		revisions: revisions,
		bandit:    debugger,
		frequency: freq,
		pacing:    pacing,
	}
}

// GET /api/v1/admin/config
func (h *AdminHandler) GetConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, fres.Response.StatusOK(h.configs.Current()))
}

// PUT /api/v1/admin/config
// body: DecisioningConfig JSON; omitted sections keep their current value
func (h *AdminHandler) PutConfig(c echo.Context) error {
	next := h.configs.Current()
	if err := c.Bind(&next); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "invalid body: " + err.Error()})
	}

	if err := h.configs.Apply(next); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) || errors.Is(err, config.ErrImmutable) {
			return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	if h.revisions != nil {
		who, _ := c.Get("user_id").(string)
		if err := h.revisions.SaveRevision(c.Request().Context(), next, who); err != nil {
			return c.JSON(http.StatusInternalServerError, ResponseError{Message: "applied but not persisted: " + err.Error()})
		}
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(next))
}

// POST /api/v1/admin/bandit/debug
func (h *AdminHandler) BanditDebug(c echo.Context) error {
	var req BanditDebugRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	bc := h.bandit.BuildContext(req.UserFeatures, req.ContextFeatures, time.Now())
	out, err := h.bandit.Debug(c.Request().Context(), bc, req.Candidates)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(out))
}

// GET /api/v1/admin/frequency/:user_id?campaign_id=c1
func (h *AdminHandler) FrequencyCounts(c echo.Context) error {
	counts, err := h.frequency.Counts(c.Request().Context(), c.Param("user_id"), c.QueryParam("campaign_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(counts))
}

// GET /api/v1/admin/pacing/:campaign_id
func (h *AdminHandler) PacingStatus(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("campaign_id")

	spent, err := h.pacing.SpentToday(ctx, id, time.Now())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	mult, err := h.pacing.Multiplier(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(PacingStatus{CampaignID: id, SpentToday: spent, Multiplier: mult}))
}
