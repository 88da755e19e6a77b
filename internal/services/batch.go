package services

import (
	"errors"

	"medkit/internal/models"
)

// kitInspector reports why a kit cannot take part in an operation, or nil
// when it can.
type kitInspector func(kitID string) *models.KitStateIssue

// requireAll inspects every kit and, if any is rejected, fails the whole
// batch with every offender listed.
func requireAll(kitIDs []string, inspect kitInspector) error {
	var issues []models.KitStateIssue
	for _, id := range kitIDs {
		if issue := inspect(id); issue != nil {
			issues = append(issues, *issue)
		}
	}
	if len(issues) > 0 {
		return &models.InvalidKitStateError{Kits: issues}
	}
	return nil
}

// eachIndependently applies fn to every item on its own. fn reports the kit
// it acted on; a failing item is recorded with its index and the remaining
// items still run.
func eachIndependently[T any](items []T, fn func(item T) (kitID string, err error)) (succeeded []string, failed []models.BulkOperationError) {
	succeeded = []string{}
	failed = []models.BulkOperationError{}
	for i, item := range items {
		id, err := fn(item)
		if err != nil {
			failed = append(failed, bulkError(i, id, err))
			continue
		}
		succeeded = append(succeeded, id)
	}
	return succeeded, failed
}

func bulkError(index int, kitID string, err error) models.BulkOperationError {
	out := models.BulkOperationError{Index: index, ItemID: kitID, Reason: err.Error()}

	var (
		kitErr         *models.InvalidKitStateError
		incompleteErr  *models.IncompleteKitError
		unavailableErr *models.UnavailableComponentsError
	)
	switch {
	case errors.As(err, &kitErr) && len(kitErr.Kits) == 1:
		out.Reason = kitErr.Kits[0].Reason
	case errors.As(err, &incompleteErr):
		out.Missing = incompleteErr.Missing
	case errors.As(err, &unavailableErr):
		out.Reason = "some components are not available"
		out.Unavailable = unavailableErr.Components
	}
	return out
}

// checkKit is the per-kit check shared by both batch policies: the kit must
// exist and be in one of the allowed states.
func checkKit(kits map[string]*models.Kit, allowed ...models.KitStatus) kitInspector {
	return func(id string) *models.KitStateIssue {
		kit, ok := kits[id]
		if !ok {
			return &models.KitStateIssue{KitID: id, Reason: "kit not found"}
		}
		for _, s := range allowed {
			if kit.Status == s {
				return nil
			}
		}
		return &models.KitStateIssue{KitID: id, Status: kit.Status, Reason: "kit is " + string(kit.Status)}
	}
}

// also chains inspectors; the first rejection wins.
func also(inspectors ...kitInspector) kitInspector {
	return func(id string) *models.KitStateIssue {
		for _, inspect := range inspectors {
			if issue := inspect(id); issue != nil {
				return issue
			}
		}
		return nil
	}
}
