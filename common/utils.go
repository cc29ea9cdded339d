package common

import (
	"golang.org/x/text/cases"
)

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// FoldName returns the case-folded form of an asset or bone name.
// Names that differ only by case fold to the same key, so the result is suitable as a map key
// for case-insensitive lookups.
//
// Parameters:
//   - name: the name to fold
//
// Returns:
//   - string: the folded name
func FoldName(name string) string {
	return cases.Fold().String(name)
}

// NamesEqual reports whether two names are equal ignoring case.
func NamesEqual(a, b string) bool {
	if a == b {
		return true
	}
	return FoldName(a) == FoldName(b)
}
