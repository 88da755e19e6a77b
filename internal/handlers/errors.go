package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"medkit/internal/common"
	"medkit/internal/logger"
	"medkit/internal/models"
)

// respondError writes the structured error body for err. Lifecycle errors
// carry the offending ids in details; anything else is logged and hidden
// behind a 500.
func respondError(c echo.Context, err error) error {
	var (
		verr *models.ValidationError
		ierr *models.IncompleteKitError
		uerr *models.UnavailableComponentsError
		terr *models.InvalidTransitionError
		kerr *models.InvalidKitStateError
		derr *models.DistributorInactiveError
	)

	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, common.CreateErrorResponse("VALIDATION_ERROR", "validation failed", verr.Issues))
	case errors.As(err, &ierr):
		return c.JSON(http.StatusUnprocessableEntity, common.CreateErrorResponse("INCOMPLETE_KIT", ierr.Error(),
			map[string]any{"missing": ierr.Missing}))
	case errors.As(err, &uerr):
		return c.JSON(http.StatusConflict, common.CreateErrorResponse("UNAVAILABLE_COMPONENTS", "components cannot be assembled",
			uerr.Components))
	case errors.As(err, &terr):
		return c.JSON(http.StatusConflict, common.CreateErrorResponse("INVALID_TRANSITION", terr.Error(),
			map[string]any{"component_id": terr.ComponentID, "from": terr.From, "to": terr.To}))
	case errors.As(err, &kerr):
		return c.JSON(http.StatusConflict, common.CreateErrorResponse("INVALID_KIT_STATE", "kits are not in a valid state", kerr.Kits))
	case errors.As(err, &derr):
		return c.JSON(http.StatusUnprocessableEntity, common.CreateErrorResponse("DISTRIBUTOR_INACTIVE", derr.Error(),
			map[string]any{"distributor_id": derr.DistributorID}))
	case errors.Is(err, models.ErrComponentNotFound):
		return common.SendNotFoundError(c, "component")
	case errors.Is(err, models.ErrKitNotFound):
		return common.SendNotFoundError(c, "kit")
	case errors.Is(err, models.ErrDistributorNotFound):
		return common.SendNotFoundError(c, "distributor")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn(c.Request().Context(), "request timed out", logger.String("path", c.Path()), logger.ErrorF(err))
		return c.JSON(http.StatusGatewayTimeout, common.CreateErrorResponse("TIMEOUT", "the operation timed out", nil))
	}

	logger.Error(c.Request().Context(), "request failed",
		logger.String("method", c.Request().Method),
		logger.String("path", c.Path()),
		logger.ErrorF(err),
	)
	return common.SendServerError(c, "internal error")
}

func bindError(c echo.Context) error {
	return common.SendValidationError(c, "body", "malformed request body")
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, models.NewValidationError(name, "must be an integer")
	}
	return n, nil
}

// queryTime accepts RFC 3339 timestamps or plain dates.
func queryTime(c echo.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, models.NewValidationError(name, "must be an RFC 3339 timestamp or YYYY-MM-DD date")
}

func pagination(c echo.Context) (limit, offset int, err error) {
	if limit, err = queryInt(c, "limit", 0); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(c, "offset", 0); err != nil {
		return 0, 0, err
	}
	limit, offset, err = common.ValidatePaginationParams(limit, offset)
	if err != nil {
		return 0, 0, models.NewValidationError("offset", err.Error())
	}
	return limit, offset, nil
}
