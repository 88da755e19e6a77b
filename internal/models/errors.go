package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrComponentNotFound   = errors.New("component not found")
	ErrKitNotFound         = errors.New("kit not found")
	ErrDistributorNotFound = errors.New("distributor not found")

	ErrValidation            = errors.New("validation failed")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrInvalidKitState       = errors.New("invalid kit state")
	ErrIncompleteKit         = errors.New("incomplete kit")
	ErrUnavailableComponents = errors.New("unavailable components")
	ErrDistributorInactive   = errors.New("distributor inactive")
)

// ValidationIssue names one offending input. ID is empty for request-level
// problems.
type ValidationIssue struct {
	ID      string `json:"id,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Issues []ValidationIssue
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Issues: []ValidationIssue{{Field: field, Message: message}}}
}

func (e *ValidationError) Add(id, field, message string) {
	e.Issues = append(e.Issues, ValidationIssue{ID: id, Field: field, Message: message})
}

func (e *ValidationError) HasIssues() bool {
	return len(e.Issues) > 0
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		if is.ID != "" {
			parts = append(parts, fmt.Sprintf("%s %s: %s", is.Field, is.ID, is.Message))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", is.Field, is.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type InvalidTransitionError struct {
	ComponentID string
	From        ComponentStatus
	To          ComponentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("component %s: cannot change status from %s to %s", e.ComponentID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

type KitStateIssue struct {
	KitID  string    `json:"kit_id"`
	Status KitStatus `json:"status,omitempty"`
	Reason string    `json:"reason"`
}

type InvalidKitStateError struct {
	Kits []KitStateIssue
}

func (e *InvalidKitStateError) Error() string {
	parts := make([]string, 0, len(e.Kits))
	for _, k := range e.Kits {
		parts = append(parts, fmt.Sprintf("%s: %s", k.KitID, k.Reason))
	}
	return "invalid kit state: " + strings.Join(parts, "; ")
}

func (e *InvalidKitStateError) Unwrap() error { return ErrInvalidKitState }

// KitIDs returns the offending kit ids in order.
func (e *InvalidKitStateError) KitIDs() []string {
	ids := make([]string, len(e.Kits))
	for i, k := range e.Kits {
		ids[i] = k.KitID
	}
	return ids
}

type IncompleteKitError struct {
	Missing []ComponentType
}

func (e *IncompleteKitError) Error() string {
	names := make([]string, len(e.Missing))
	for i, t := range e.Missing {
		names[i] = string(t)
	}
	return "incomplete kit: missing " + strings.Join(names, ", ")
}

func (e *IncompleteKitError) Unwrap() error { return ErrIncompleteKit }

type UnavailableComponent struct {
	Type        ComponentType   `json:"type"`
	ComponentID string          `json:"component_id"`
	Status      ComponentStatus `json:"status,omitempty"`
	Reason      string          `json:"reason"`
}

type UnavailableComponentsError struct {
	Components []UnavailableComponent
}

func (e *UnavailableComponentsError) Error() string {
	parts := make([]string, 0, len(e.Components))
	for _, c := range e.Components {
		parts = append(parts, fmt.Sprintf("%s %s: %s", c.Type, c.ComponentID, c.Reason))
	}
	return "unavailable components: " + strings.Join(parts, "; ")
}

func (e *UnavailableComponentsError) Unwrap() error { return ErrUnavailableComponents }

type DistributorInactiveError struct {
	DistributorID string
}

func (e *DistributorInactiveError) Error() string {
	return fmt.Sprintf("distributor %s is inactive", e.DistributorID)
}

func (e *DistributorInactiveError) Unwrap() error { return ErrDistributorInactive }
