package rest

import (
	"context"
	"errors"
	"net/http"

	"adDecisioning/business/causal"
	"adDecisioning/domain"

	"github.com/AMFarhan21/fres"
	"github.com/labstack/echo/v4"
)

type (
	ExperimentHandler struct {
		causalService CausalService
	}

	CausalService interface {
		Experiment(ctx context.Context, campaignID string) (domain.Experiment, error)
		ComputeIncrementality(ctx context.Context, campaignID string) (domain.IncrementalityReport, error)
		LastReport(ctx context.Context, campaignID string) (domain.IncrementalityReport, bool, error)
	}

	IncrementalityResponse struct {
		Current  *domain.IncrementalityReport `json:"current,omitempty"`
		Previous *domain.IncrementalityReport `json:"previous,omitempty"`
	}
)

func NewExperimentHandler(svc CausalService) *ExperimentHandler {
	return &ExperimentHandler{causalService: svc}
}

// GET /api/v1/experiments/:campaign_id
func (h *ExperimentHandler) GetExperiment(c echo.Context) error {
	exp, err := h.causalService.Experiment(c.Request().Context(), c.Param("campaign_id"))
	if errors.Is(err, causal.ErrNoExperiment) {
		return c.JSON(http.StatusNotFound, ResponseError{Message: err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(exp))
}

// GET /api/v1/experiments/:campaign_id/incrementality
func (h *ExperimentHandler) GetIncrementality(c echo.Context) error {
	ctx := c.Request().Context()
	campaignID := c.Param("campaign_id")

	var resp IncrementalityResponse
	current, err := h.causalService.ComputeIncrementality(ctx, campaignID)
	switch {
	case err == nil:
		resp.Current = &current
	case !errors.Is(err, causal.ErrNoExperiment):
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	previous, found, err := h.causalService.LastReport(ctx, campaignID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
	if found {
		resp.Previous = &previous
	}

	if resp.Current == nil && resp.Previous == nil {
		return c.JSON(http.StatusNotFound, ResponseError{Message: "no experiment for campaign " + campaignID})
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(resp))
}
