package models

import (
	"fmt"
	"strings"
	"time"
)

type DistributorStatus string

const (
	DistributorStatusActive   DistributorStatus = "active"
	DistributorStatusInactive DistributorStatus = "inactive"
)

func ParseDistributorStatus(s string) (DistributorStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active":
		return DistributorStatusActive, nil
	case "inactive":
		return DistributorStatusInactive, nil
	}
	return "", fmt.Errorf("unknown distributor status %q", s)
}

type Distributor struct {
	ID            string            `json:"id" db:"id"`
	Name          string            `json:"name" db:"name"`
	Email         string            `json:"email" db:"email"`
	Tel           string            `json:"tel" db:"tel"`
	Address       string            `json:"address" db:"address"`
	City          string            `json:"city" db:"city"`
	ContactPerson string            `json:"contact_person" db:"contact_person"`
	Status        DistributorStatus `json:"status" db:"status"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" db:"updated_at"`
}

func (d *Distributor) IsActive() bool {
	return d.Status == DistributorStatusActive
}
