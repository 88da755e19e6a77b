package handlers

import (
	"context"
	"iter"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"

	"medkit/internal/models"
)

const defaultDiscardRateMonths = 6

type DiscardRater interface {
	DiscardRate(ctx context.Context, months int) (iter.Seq[models.MonthlyDiscardRate], error)
}

type AnalyticsHandlers struct {
	rates DiscardRater
}

func NewAnalyticsHandlers(rates DiscardRater) *AnalyticsHandlers {
	return &AnalyticsHandlers{rates: rates}
}

// DiscardRate returns the scrap ratio of the trailing months, oldest first.
func (h *AnalyticsHandlers) DiscardRate(c echo.Context) error {
	months, err := queryInt(c, "months", defaultDiscardRateMonths)
	if err != nil {
		return respondError(c, err)
	}
	seq, err := h.rates.DiscardRate(c.Request().Context(), months)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"months": months,
		"rates":  slices.Collect(seq),
	})
}
