package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"medkit/internal/models"
)

type Exporter interface {
	Export(ctx context.Context, format models.ExportFormat) (*models.ExportResult, error)
}

type ExportHandlers struct {
	exporter Exporter
}

func NewExportHandlers(exporter Exporter) *ExportHandlers {
	return &ExportHandlers{exporter: exporter}
}

// CreateExport snapshots every table to object storage and returns a
// presigned download link.
func (h *ExportHandlers) CreateExport(c echo.Context) error {
	format, err := models.ParseExportFormat(c.QueryParam("format"))
	if err != nil {
		return respondError(c, err)
	}
	res, err := h.exporter.Export(c.Request().Context(), format)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}
