package dag

import (
	"sort"

	"github.com/codeready-toolchain/orcaci/internal/domain"
)

// expandMatrix computes the surviving combinations for a stage's matrix:
//
//	expand(matrix) = (CartesianProduct(dimensions) ∪ include) \ {c : ∃e ∈ exclude, e ⊆ c}
//
// dedup applies to the include entries; exclude match is subset
// semantics (a combination is excluded if it contains every key/value
// pair of any exclude entry). Dimension keys are ordered
// lexicographically for a deterministic display name and job order,
// since Matrix.Dimensions carries no declared key order.
func expandMatrix(m *domain.Matrix) ([]domain.Combination, []string) {
	keyOrder := sortedKeys(m.Dimensions)

	product := cartesianProduct(m.Dimensions, keyOrder)
	combos := product
	for _, inc := range m.Include {
		if !containsCombo(combos, inc) {
			combos = append(combos, cloneCombo(inc))
		}
	}

	keyOrder = mergeKeyOrder(keyOrder, m.Include)

	survivors := make([]domain.Combination, 0, len(combos))
	for _, c := range combos {
		if !excludedBy(c, m.Exclude) {
			survivors = append(survivors, c)
		}
	}
	return survivors, keyOrder
}

func sortedKeys(dims map[string][]string) []string {
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// mergeKeyOrder appends any dimension keys introduced only by include
// entries, in first-seen order, after the sorted Cartesian-product keys.
func mergeKeyOrder(base []string, includes []map[string]string) []string {
	seen := make(map[string]bool, len(base))
	for _, k := range base {
		seen[k] = true
	}
	order := append([]string(nil), base...)
	for _, inc := range includes {
		incKeys := make([]string, 0, len(inc))
		for k := range inc {
			incKeys = append(incKeys, k)
		}
		sort.Strings(incKeys)
		for _, k := range incKeys {
			if !seen[k] {
				seen[k] = true
				order = append(order, k)
			}
		}
	}
	return order
}

func cartesianProduct(dims map[string][]string, keyOrder []string) []domain.Combination {
	combos := []domain.Combination{{}}
	for _, key := range keyOrder {
		values := dims[key]
		next := make([]domain.Combination, 0, len(combos)*len(values))
		for _, c := range combos {
			for _, v := range values {
				nc := cloneCombo(c)
				nc[key] = v
				next = append(next, nc)
			}
		}
		combos = next
	}
	return combos
}

func cloneCombo(c domain.Combination) domain.Combination {
	nc := make(domain.Combination, len(c))
	for k, v := range c {
		nc[k] = v
	}
	return nc
}

func containsCombo(combos []domain.Combination, candidate domain.Combination) bool {
	for _, c := range combos {
		if comboEqual(c, candidate) {
			return true
		}
	}
	return false
}

func comboEqual(a, b domain.Combination) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// excludedBy reports whether combo contains every key/value pair of
// any exclude entry.
func excludedBy(combo domain.Combination, excludes []map[string]string) bool {
	for _, e := range excludes {
		if isSubsetOf(e, combo) {
			return true
		}
	}
	return false
}

func isSubsetOf(sub map[string]string, combo domain.Combination) bool {
	for k, v := range sub {
		if combo[k] != v {
			return false
		}
	}
	return true
}
