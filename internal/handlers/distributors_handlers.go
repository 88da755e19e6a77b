package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"medkit/internal/models"
	"medkit/internal/services"
)

// DistributorHandlers serves the distributor directory.
type DistributorHandlers struct {
	distributorService services.DistributorService
}

func NewDistributorHandlers(distributorService services.DistributorService) *DistributorHandlers {
	return &DistributorHandlers{distributorService: distributorService}
}

// DistributorRequest is the create and update payload.
type DistributorRequest struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Tel           string `json:"tel"`
	Address       string `json:"address"`
	City          string `json:"city"`
	ContactPerson string `json:"contact_person"`
}

func (r DistributorRequest) toModel() *models.Distributor {
	return &models.Distributor{
		ID:            r.ID,
		Name:          r.Name,
		Email:         r.Email,
		Tel:           r.Tel,
		Address:       r.Address,
		City:          r.City,
		ContactPerson: r.ContactPerson,
	}
}

func (h *DistributorHandlers) ListDistributors(c echo.Context) error {
	limit, offset, err := pagination(c)
	if err != nil {
		return respondError(c, err)
	}
	var status *models.DistributorStatus
	if raw := c.QueryParam("status"); raw != "" {
		s, err := models.ParseDistributorStatus(raw)
		if err != nil {
			return respondError(c, models.NewValidationError("status", err.Error()))
		}
		status = &s
	}

	distributors, err := h.distributorService.List(c.Request().Context(), status, limit, offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"distributors": distributors,
		"limit":        limit,
		"offset":       offset,
	})
}

func (h *DistributorHandlers) CreateDistributor(c echo.Context) error {
	var req DistributorRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}
	distributor := req.toModel()
	if err := h.distributorService.Create(c.Request().Context(), distributor); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, distributor)
}

func (h *DistributorHandlers) GetDistributor(c echo.Context) error {
	distributor, err := h.distributorService.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, distributor)
}

func (h *DistributorHandlers) UpdateDistributor(c echo.Context) error {
	var req DistributorRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}
	ctx := c.Request().Context()
	distributor := req.toModel()
	distributor.ID = c.Param("id")
	if err := h.distributorService.Update(ctx, distributor); err != nil {
		return respondError(c, err)
	}

	updated, err := h.distributorService.GetByID(ctx, distributor.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// SetDistributorStatus activates or deactivates a distributor.
func (h *DistributorHandlers) SetDistributorStatus(c echo.Context) error {
	var req SetStatusRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}
	status, err := models.ParseDistributorStatus(req.Status)
	if err != nil {
		return respondError(c, models.NewValidationError("status", err.Error()))
	}

	distributor, err := h.distributorService.SetStatus(c.Request().Context(), c.Param("id"), status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, distributor)
}
