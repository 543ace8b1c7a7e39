package match

import (
	"slices"

	"github.com/roach88/magnolia/driver"
)

// Sort orders docs in place by keys. Earlier keys take precedence and
// ties keep their original order. Missing fields sort as null.
func Sort(docs []map[string]any, keys driver.Sort) {
	if len(keys) == 0 {
		return
	}
	slices.SortStableFunc(docs, func(a, b map[string]any) int {
		for _, k := range keys {
			av, _ := Get(a, k.Key)
			bv, _ := Get(b, k.Key)
			c := Compare(av, bv)
			if k.Order < 0 {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}
