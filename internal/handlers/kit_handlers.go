package handlers

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"medkit/internal/models"
	"medkit/internal/services"
)

type KitHandlers struct {
	kits         services.KitService
	distribution services.DistributionService
	disassembly  services.DisassemblyService
}

func NewKitHandlers(kits services.KitService, distribution services.DistributionService, disassembly services.DisassemblyService) *KitHandlers {
	return &KitHandlers{kits: kits, distribution: distribution, disassembly: disassembly}
}

// CreateKitRequest names one component per slot. Slot keys accept the same
// spellings as component types ("SIM_card", "headphones", ...).
type CreateKitRequest struct {
	KitID      string            `json:"kit_id"`
	Components map[string]string `json:"components"`
}

// params resolves slot keys to component types. Keys are visited in sorted
// order so a type named twice is always reported against the same key.
func (r CreateKitRequest) params(field string, verr *models.ValidationError) models.CreateKitParams {
	keys := lo.Keys(r.Components)
	slices.Sort(keys)

	refs := make(models.KitComponents, len(keys))
	seen := make(map[models.ComponentType]string, len(keys))
	for _, key := range keys {
		id := r.Components[key]
		t, err := models.ParseComponentType(key)
		if err != nil {
			verr.Add(id, field+"."+key, err.Error())
			continue
		}
		if prev, ok := seen[t]; ok {
			verr.Add(id, field+"."+key, fmt.Sprintf("%s slot already given as %q", t, prev))
			continue
		}
		seen[t] = key
		refs[t] = id
	}
	return models.CreateKitParams{KitID: r.KitID, Components: refs}
}

func (h *KitHandlers) Create(c echo.Context) error {
	var req CreateKitRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}

	verr := &models.ValidationError{}
	params := req.params("components", verr)
	if verr.HasIssues() {
		return respondError(c, verr)
	}

	res, err := h.kits.CreateKit(c.Request().Context(), params)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

type CreateKitsRequest struct {
	Kits []CreateKitRequest `json:"kits"`
}

// CreateBatch assembles each listed kit on its own. The response is 201
// when at least one kit was created and 422 when none was.
func (h *KitHandlers) CreateBatch(c echo.Context) error {
	var req CreateKitsRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}

	verr := &models.ValidationError{}
	params := make([]models.CreateKitParams, len(req.Kits))
	for i, k := range req.Kits {
		params[i] = k.params(fmt.Sprintf("kits[%d].components", i), verr)
	}
	if verr.HasIssues() {
		return respondError(c, verr)
	}

	res, err := h.kits.CreateKits(c.Request().Context(), params)
	if err != nil {
		return respondError(c, err)
	}
	status := http.StatusCreated
	if len(res.Succeeded) == 0 {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, res)
}

func (h *KitHandlers) List(c echo.Context) error {
	limit, offset, err := pagination(c)
	if err != nil {
		return respondError(c, err)
	}
	filter := models.KitFilter{
		DistributorID: c.QueryParam("distributor_id"),
		Limit:         limit,
		Offset:        offset,
	}
	if raw := c.QueryParam("status"); raw != "" {
		s, err := models.ParseKitStatus(raw)
		if err != nil {
			return respondError(c, models.NewValidationError("status", err.Error()))
		}
		filter.Status = &s
	}
	if filter.CreatedFrom, err = queryTime(c, "created_from"); err != nil {
		return respondError(c, err)
	}
	if filter.CreatedTo, err = queryTime(c, "created_to"); err != nil {
		return respondError(c, err)
	}

	kits, err := h.kits.ListKits(c.Request().Context(), filter)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"kits":   kits,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *KitHandlers) Get(c echo.Context) error {
	kit, err := h.kits.GetKit(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, kit)
}

type DistributeRequest struct {
	KitIDs        []string   `json:"kit_ids"`
	DistributorID string     `json:"distributor_id"`
	StartTime     *time.Time `json:"start_time"`
}

// Distribute hands every listed kit to the distributor, or none of them.
func (h *KitHandlers) Distribute(c echo.Context) error {
	var req DistributeRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}
	res, err := h.distribution.DistributeKits(c.Request().Context(), models.DistributeParams{
		KitIDs:        req.KitIDs,
		DistributorID: req.DistributorID,
		StartTime:     req.StartTime,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

type CollectRequest struct {
	KitIDs  []string   `json:"kit_ids"`
	EndTime *time.Time `json:"end_time"`
}

func (h *KitHandlers) Collect(c echo.Context) error {
	var req CollectRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}
	res, err := h.distribution.CollectKits(c.Request().Context(), models.CollectParams{
		KitIDs:  req.KitIDs,
		EndTime: req.EndTime,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

type DisassembleRequest struct {
	KitIDs            []string `json:"kit_ids,omitempty"`
	ScrapComponentIDs []string `json:"scrap_component_ids"`
}

func (h *KitHandlers) Disassemble(c echo.Context) error {
	var req DisassembleRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}
	res, err := h.disassembly.DisassembleKit(c.Request().Context(), c.Param("id"),
		models.DisassembleOptions{ScrapComponentIDs: req.ScrapComponentIDs})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// DisassembleBatch processes each kit on its own; the response lists
// successes and failures and is 200 even when every kit failed.
func (h *KitHandlers) DisassembleBatch(c echo.Context) error {
	var req DisassembleRequest
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}
	res, err := h.disassembly.DisassembleKits(c.Request().Context(), req.KitIDs,
		models.DisassembleOptions{ScrapComponentIDs: req.ScrapComponentIDs})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
