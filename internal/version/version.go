// Package version compares product release version strings. Versions
// are dotted numeric components with an optional prerelease suffix
// after the first hyphen ("1.2.0-beta.1"). A prerelease sorts strictly
// below the same base version without a suffix.
package version

import (
	"strconv"
	"strings"
)

// Compare returns -1, 0 or 1 as a sorts before, equal to, or after b.
// It is a total order usable with sort.Slice.
func Compare(a, b string) int {
	aBase, aPre := split(a)
	bBase, bPre := split(b)

	if c := compareBase(aBase, bBase); c != 0 {
		return c
	}

	// Equal base: the release without a prerelease suffix wins
	switch {
	case aPre == "" && bPre == "":
		return 0
	case aPre == "":
		return 1
	case bPre == "":
		return -1
	}
	return comparePre(aPre, bPre)
}

// Less reports whether a sorts before b
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

func split(v string) (base, pre string) {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexByte(v, '-'); i >= 0 {
		return v[:i], v[i+1:]
	}
	return v, ""
}

func compareBase(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, aok := component(as, i)
		bv, bok := component(bs, i)
		if aok && bok {
			if av != bv {
				if av < bv {
					return -1
				}
				return 1
			}
			continue
		}
		// Non-numeric components compare as strings
		astr, bstr := "", ""
		if i < len(as) {
			astr = as[i]
		}
		if i < len(bs) {
			bstr = bs[i]
		}
		if c := strings.Compare(astr, bstr); c != 0 {
			return c
		}
	}
	return 0
}

// component returns the numeric value of the i-th dot component,
// treating a missing component as 0 ("1.0" == "1.0.0")
func component(parts []string, i int) (int, bool) {
	if i >= len(parts) {
		return 0, true
	}
	v, err := strconv.Atoi(parts[i])
	if err != nil {
		return 0, false
	}
	return v, true
}

// comparePre orders prerelease suffixes: dot components compare
// numerically when both are numeric, lexically otherwise, and the
// shorter suffix sorts first when all shared components are equal
func comparePre(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		av, aerr := strconv.Atoi(as[i])
		bv, berr := strconv.Atoi(bs[i])
		if aerr == nil && berr == nil {
			if av != bv {
				if av < bv {
					return -1
				}
				return 1
			}
			continue
		}
		if c := strings.Compare(as[i], bs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}
