package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortMethod names one of the supported total orders over the registry.
type SortMethod string

const (
	ByName         SortMethod = "name"
	ByNumericToken SortMethod = "number"
	ByDateAdded    SortMethod = "date"

	DefaultSortMethod = ByDateAdded
)

var ErrUnknownSortMethod = errors.New("unknown sort method")

// ParseSortMethod accepts the short option names (name, number, date) as well
// as the long ones (byName, byNumericToken, byDateAdded).
func ParseSortMethod(s string) (SortMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "name", "byname":
		return ByName, nil
	case "number", "numeric", "bynumerictoken":
		return ByNumericToken, nil
	case "date", "bydateadded", "":
		return ByDateAdded, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSortMethod, s)
}

func (m SortMethod) less(locale string) (func(a, b Document) bool, error) {
	switch m {
	case ByName:
		c := collate.New(language.Make(locale))
		return func(a, b Document) bool { return c.CompareString(a.Name(), b.Name()) < 0 }, nil
	case ByNumericToken:
		return func(a, b Document) bool { return compareNumericToken(a.Name(), b.Name()) < 0 }, nil
	case ByDateAdded:
		return func(a, b Document) bool { return a.AddedAt.Before(b.AddedAt) }, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSortMethod, string(m))
}

func sortStable(docs []Document, less func(a, b Document) bool) {
	sort.SliceStable(docs, func(i, j int) bool { return less(docs[i], docs[j]) })
}

// numericToken returns the first maximal run of ASCII digits in name with
// leading zeros stripped, and whether one was found.
func numericToken(name string) (string, bool) {
	start := strings.IndexAny(name, "0123456789")
	if start < 0 {
		return "", false
	}
	end := start
	for end < len(name) && name[end] >= '0' && name[end] <= '9' {
		end++
	}
	tok := strings.TrimLeft(name[start:end], "0")
	if tok == "" {
		tok = "0"
	}
	return tok, true
}

// compareNumericToken orders names by the integer value of their first digit
// run. Names without digits compare as +infinity and tie with each other.
func compareNumericToken(a, b string) int {
	ta, okA := numericToken(a)
	tb, okB := numericToken(b)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return 1
	case !okB:
		return -1
	}
	if len(ta) != len(tb) {
		if len(ta) < len(tb) {
			return -1
		}
		return 1
	}
	return strings.Compare(ta, tb)
}
