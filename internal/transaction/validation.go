package transaction

import (
	"fmt"
	"strings"
)

var validStatuses = map[string]bool{
	StatusPending:    true,
	StatusProcessing: true,
	StatusCompleted:  true,
	StatusFailed:     true,
}

var validTypes = map[string]bool{
	TypeDeposit:    true,
	TypeWithdrawal: true,
}

// ValidateListFilter normalizes the optional status/type query filters to
// upper case and rejects unknown values.
func ValidateListFilter(filter *ListFilter) error {
	filter.Status = strings.ToUpper(strings.TrimSpace(filter.Status))
	filter.Type = strings.ToUpper(strings.TrimSpace(filter.Type))

	if filter.Status != "" && !validStatuses[filter.Status] {
		return fmt.Errorf("invalid status filter %q", filter.Status)
	}
	if filter.Type != "" && !validTypes[filter.Type] {
		return fmt.Errorf("invalid type filter %q", filter.Type)
	}
	return nil
}
