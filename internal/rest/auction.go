package rest

import (
	"context"
	"errors"
	"net/http"

	"adDecisioning/business/auction"
	"adDecisioning/domain"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type (
	AuctionHandler struct {
		validate       *validator.Validate
		auctionService AuctionService
	}

	AuctionService interface {
		RunAuction(ctx context.Context, req domain.AuctionRequest) []domain.Winner
		RecordFeedback(ctx context.Context, fb domain.AuctionFeedback) error
		RecordConversion(ctx context.Context, conv domain.Conversion) error
	}

	AuctionResponse struct {
		Winners []domain.Winner `json:"winners"`
	}
)

func NewAuctionHandler(svc AuctionService, validate *validator.Validate) *AuctionHandler {
	return &AuctionHandler{
		validate:       validate,
		auctionService: svc,
	}
}

// POST /api/v1/auctions
func (h *AuctionHandler) RunAuction(c echo.Context) error {
	var req domain.AuctionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	winners := h.auctionService.RunAuction(c.Request().Context(), req)
	return c.JSON(http.StatusOK, fres.Response.StatusOK(AuctionResponse{Winners: winners}))
}

// POST /api/v1/auctions/:id/feedback
func (h *AuctionHandler) Feedback(c echo.Context) error {
	var fb domain.AuctionFeedback
	if err := c.Bind(&fb); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	fb.AuctionID = c.Param("id")
	if err := h.validate.Struct(&fb); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	err := h.auctionService.RecordFeedback(c.Request().Context(), fb)
	switch {
	case errors.Is(err, auction.ErrUnknownAuction):
		return c.JSON(http.StatusNotFound, ResponseError{Message: err.Error()})
	case errors.Is(err, auction.ErrNotServed):
		return c.JSON(http.StatusConflict, ResponseError{Message: err.Error()})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusCreated, fres.Response.StatusCreated("feedback recorded"))
}

// POST /api/v1/conversions
func (h *AuctionHandler) Conversion(c echo.Context) error {
	var conv domain.Conversion
	if err := c.Bind(&conv); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&conv); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	if err := h.auctionService.RecordConversion(c.Request().Context(), conv); err != nil {
		if errors.Is(err, auction.ErrNoMeasurement) {
			return c.JSON(http.StatusServiceUnavailable, ResponseError{Message: err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusCreated, fres.Response.StatusCreated("conversion recorded"))
}
