package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

type (
	ComponentType   string
	ComponentStatus string
)

const (
	ComponentTypePhone       ComponentType = "phone"
	ComponentTypeSimCard     ComponentType = "sim_card"
	ComponentTypeRightSensor ComponentType = "right_sensor"
	ComponentTypeLeftSensor  ComponentType = "left_sensor"
	ComponentTypeHeadphone   ComponentType = "headphone"
	ComponentTypeBox         ComponentType = "box"
)

const (
	ComponentStatusAvailable    ComponentStatus = "available"
	ComponentStatusInKit        ComponentStatus = "in-kit"
	ComponentStatusRefurbishing ComponentStatus = "refurbishing"
	ComponentStatusScrapped     ComponentStatus = "scrapped"
)

// RequiredComponentTypes lists the slots of a kit in display order.
var RequiredComponentTypes = []ComponentType{
	ComponentTypePhone,
	ComponentTypeSimCard,
	ComponentTypeRightSensor,
	ComponentTypeLeftSensor,
	ComponentTypeHeadphone,
	ComponentTypeBox,
}

// ModelCatalog holds the accepted model numbers per component type.
var ModelCatalog = map[ComponentType][]string{
	ComponentTypePhone:       {"P-Model-1", "P-Model-2", "P-Model-3"},
	ComponentTypeSimCard:     {"SIM-Model-1", "SIM-Model-2"},
	ComponentTypeRightSensor: {"RS-Model-1", "RS-Model-2"},
	ComponentTypeLeftSensor:  {"LS-Model-1", "LS-Model-2"},
	ComponentTypeHeadphone:   {"HP-Model-1", "HP-Model-2", "HP-Model-3"},
	ComponentTypeBox:         {"Box-Model-1", "Box-Model-2"},
}

var componentTypeAliases = map[string]ComponentType{
	"phone":        ComponentTypePhone,
	"phones":       ComponentTypePhone,
	"sim_card":     ComponentTypeSimCard,
	"simcard":      ComponentTypeSimCard,
	"sim":          ComponentTypeSimCard,
	"sim_cards":    ComponentTypeSimCard,
	"right_sensor": ComponentTypeRightSensor,
	"rightsensor":  ComponentTypeRightSensor,
	"left_sensor":  ComponentTypeLeftSensor,
	"leftsensor":   ComponentTypeLeftSensor,
	"headphone":    ComponentTypeHeadphone,
	"headphones":   ComponentTypeHeadphone,
	"box":          ComponentTypeBox,
	"boxes":        ComponentTypeBox,
}

// ParseComponentType normalizes the spellings seen at the API boundary
// ("SIM_card", "SimCard", "headphones", ...) into a ComponentType.
func ParseComponentType(s string) (ComponentType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	if t, ok := componentTypeAliases[key]; ok {
		return t, nil
	}
	if t, ok := componentTypeAliases[strings.ReplaceAll(key, "_", "")]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown component type %q", s)
}

// IsValidModel reports whether model is in the catalog for t.
func (t ComponentType) IsValidModel(model string) bool {
	return slices.Contains(ModelCatalog[t], model)
}

// ParseComponentStatus normalizes status spellings such as "In-Kit",
// "in_kit" or "Scrapped".
func ParseComponentStatus(s string) (ComponentStatus, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "_", "-")
	switch key {
	case "available":
		return ComponentStatusAvailable, nil
	case "in-kit", "inkit", "bound":
		return ComponentStatusInKit, nil
	case "refurbishing", "furbishing":
		return ComponentStatusRefurbishing, nil
	case "scrapped", "scarped", "discarded":
		return ComponentStatusScrapped, nil
	}
	return "", fmt.Errorf("unknown component status %q", s)
}

type Component struct {
	ID          string          `json:"id" db:"id"`
	Type        ComponentType   `json:"type" db:"type"`
	ModelNumber string          `json:"model_number" db:"model_number"`
	BatchNumber string          `json:"batch_number" db:"batch_number"`
	Status      ComponentStatus `json:"status" db:"status"`
	KitID       *string         `json:"kit_id,omitempty" db:"kit_id"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	DiscardedAt *time.Time      `json:"discarded_at,omitempty" db:"discarded_at"`
}

// ComponentItem is one scanned component in a batch creation request.
type ComponentItem struct {
	ID          string `json:"id"`
	ModelNumber string `json:"model_number"`
}

type CreateComponentsParams struct {
	Type        ComponentType
	BatchNumber string
	Items       []ComponentItem
}

type CreateComponentsResult struct {
	Created []*Component `json:"created"`
}

// ComponentFilter narrows ListComponents. Zero values are ignored.
type ComponentFilter struct {
	Type        *ComponentType   `json:"type,omitempty"`
	Status      *ComponentStatus `json:"status,omitempty"`
	BatchNumber string           `json:"batch_number,omitempty"`
	KitID       string           `json:"kit_id,omitempty"`
	Limit       int              `json:"limit,omitempty"`
	Offset      int              `json:"offset,omitempty"`
}
