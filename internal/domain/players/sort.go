package players

import (
	"slices"
	"strings"

	"github.com/okian/rankindex/internal/domain/model"
)

// Compare orders records by SortKey bytes, then by DisplayName bytes so that
// names differing only in case still have a fixed order.
func Compare(a, b model.PlayerRecord) int {
	if c := strings.Compare(a.SortKey, b.SortKey); c != 0 {
		return c
	}
	return strings.Compare(a.DisplayName, b.DisplayName)
}

// Sort orders records in place by Compare.
func Sort(records []model.PlayerRecord) {
	slices.SortFunc(records, Compare)
}

// IsSorted reports whether records are in emission order.
func IsSorted(records []model.PlayerRecord) bool {
	return slices.IsSortedFunc(records, Compare)
}
