package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"medkit/internal/models"
	"medkit/internal/services"
)

type ComponentHandlers struct {
	components services.ComponentService
	usage      services.UsageService
}

func NewComponentHandlers(components services.ComponentService, usage services.UsageService) *ComponentHandlers {
	return &ComponentHandlers{components: components, usage: usage}
}

type CreateComponentsRequest struct {
	BatchNumber string                 `json:"batch_number"`
	Items       []models.ComponentItem `json:"items"`
}

// CreateBatch registers scanned components of the type in the path.
func (h *ComponentHandlers) CreateBatch(c echo.Context) error {
	t, err := models.ParseComponentType(c.Param("type"))
	if err != nil {
		return respondError(c, models.NewValidationError("type", err.Error()))
	}

	var req CreateComponentsRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}

	res, err := h.components.CreateComponents(c.Request().Context(), models.CreateComponentsParams{
		Type:        t,
		BatchNumber: req.BatchNumber,
		Items:       req.Items,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *ComponentHandlers) List(c echo.Context) error {
	limit, offset, err := pagination(c)
	if err != nil {
		return respondError(c, err)
	}
	filter := models.ComponentFilter{
		BatchNumber: c.QueryParam("batch_number"),
		KitID:       c.QueryParam("kit_id"),
		Limit:       limit,
		Offset:      offset,
	}
	if raw := c.QueryParam("type"); raw != "" {
		t, err := models.ParseComponentType(raw)
		if err != nil {
			return respondError(c, models.NewValidationError("type", err.Error()))
		}
		filter.Type = &t
	}
	if raw := c.QueryParam("status"); raw != "" {
		s, err := models.ParseComponentStatus(raw)
		if err != nil {
			return respondError(c, models.NewValidationError("status", err.Error()))
		}
		filter.Status = &s
	}

	list, err := h.components.ListComponents(c.Request().Context(), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"components": list,
		"limit":      limit,
		"offset":     offset,
	})
}

func (h *ComponentHandlers) Get(c echo.Context) error {
	comp, err := h.components.GetComponent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, comp)
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

func (h *ComponentHandlers) SetStatus(c echo.Context) error {
	var req SetStatusRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}
	status, err := models.ParseComponentStatus(req.Status)
	if err != nil {
		return respondError(c, models.NewValidationError("status", err.Error()))
	}

	comp, err := h.components.SetComponentStatus(c.Request().Context(), c.Param("id"), status)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, comp)
}

// UsageHistory lists every usage period of every kit the component was in.
func (h *ComponentHandlers) UsageHistory(c echo.Context) error {
	id := c.Param("id")
	history, err := h.usage.GetUsageHistory(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"component_id":  id,
		"usage_records": history,
	})
}
