package register

import (
	"sort"

	"github.com/maruel/natural"
)

// sortNatural sorts paths with digit runs ordered by value, so timepoint_9
// comes before timepoint_10.
func sortNatural(paths []string) {
	sort.Stable(natural.StringSlice(paths))
}
