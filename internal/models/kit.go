package models

import (
	"fmt"
	"strings"
	"time"
)

type KitStatus string

const (
	KitStatusAvailable    KitStatus = "Available"
	KitStatusInUse        KitStatus = "In-use"
	KitStatusUsed         KitStatus = "Used"
	KitStatusDisassembled KitStatus = "Disassembled"
)

// ParseKitStatus maps every casing and legacy alias of a kit status
// ("available", "in_use", "Bound", "Scarped", ...) to the canonical value.
func ParseKitStatus(s string) (KitStatus, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
	switch key {
	case "available":
		return KitStatusAvailable, nil
	case "in-use", "inuse", "bound", "distributed":
		return KitStatusInUse, nil
	case "used", "collected":
		return KitStatusUsed, nil
	case "disassembled", "scrapped", "scarped":
		return KitStatusDisassembled, nil
	}
	return "", fmt.Errorf("unknown kit status %q", s)
}

// KitComponents maps each required slot to the bound component ID.
type KitComponents map[ComponentType]string

// Missing returns the required slots that have no component, in slot order.
func (kc KitComponents) Missing() []ComponentType {
	var missing []ComponentType
	for _, t := range RequiredComponentTypes {
		if strings.TrimSpace(kc[t]) == "" {
			missing = append(missing, t)
		}
	}
	return missing
}

type Kit struct {
	ID              string        `json:"id" db:"id"`
	Status          KitStatus     `json:"status" db:"status"`
	Components      KitComponents `json:"components,omitempty"`
	DistributorID   *string       `json:"distributor_id,omitempty" db:"distributor_id"`
	DistributorName *string       `json:"distributor_name,omitempty" db:"distributor_name"`
	DispenseDate    *time.Time    `json:"dispense_date,omitempty" db:"dispense_date"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

type CreateKitParams struct {
	// KitID is optional; a serial ID is generated when empty.
	KitID      string
	Components KitComponents
}

type CreateKitResult struct {
	KitID string `json:"kit_id"`
	Kit   *Kit   `json:"kit"`
}

type KitFilter struct {
	Status        *KitStatus `json:"status,omitempty"`
	DistributorID string     `json:"distributor_id,omitempty"`
	CreatedFrom   *time.Time `json:"created_from,omitempty"`
	CreatedTo     *time.Time `json:"created_to,omitempty"`
	Limit         int        `json:"limit,omitempty"`
	Offset        int        `json:"offset,omitempty"`
}

// FormatKitID renders the serial kit ID for a creation day: MR, the date as
// MMDDYY, then the per-day serial padded to at least three digits.
func FormatKitID(day time.Time, serial int) string {
	prefix := "MR" + day.Format("010206")
	switch {
	case serial <= 999:
		return fmt.Sprintf("%s%03d", prefix, serial)
	case serial <= 9999:
		return fmt.Sprintf("%s%04d", prefix, serial)
	default:
		return fmt.Sprintf("%s%05d", prefix, serial)
	}
}
