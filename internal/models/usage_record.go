package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is one distribution cycle of a kit. EndTime stays nil until
// the kit is collected.
type UsageRecord struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	KitID         string     `json:"kit_id" db:"kit_id"`
	DistributorID string     `json:"distributor_id" db:"distributor_id"`
	StartTime     time.Time  `json:"start_time" db:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty" db:"end_time"`

	// Joined fields (not always populated).
	DistributorName string `json:"distributor_name,omitempty"`
}

func (u *UsageRecord) IsOpen() bool {
	return u.EndTime == nil
}

type DistributeParams struct {
	KitIDs        []string
	DistributorID string
	StartTime     *time.Time
}

type DistributeResult struct {
	Distributed  []string       `json:"distributed"`
	UsageRecords []*UsageRecord `json:"usage_records"`
}

type CollectParams struct {
	KitIDs  []string
	EndTime *time.Time
}

type CollectResult struct {
	Collected    []string       `json:"collected"`
	UsageRecords []*UsageRecord `json:"usage_records"`
}
