package version

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0", 0},
		{"1.0", "1.0.0", 0},
		{"1.0", "1.1", -1},
		{"1.1", "1.0", 1},
		{"1.9", "1.10", -1},
		{"2.0", "1.99.99", 1},
		{"1.2-alpha", "1.2", -1},
		{"1.2", "1.2-alpha", 1},
		{"1.2-alpha", "1.2-beta", -1},
		{"1.2-beta.1", "1.2-beta.2", -1},
		{"1.2-beta.2", "1.2-beta.10", -1},
		{"1.2-beta", "1.2-beta.1", -1},
		{"v1.0", "1.0", 0},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Compare(tc.a, tc.b), "Compare(%q, %q)", tc.a, tc.b)
	}
}

func TestCompareAntisymmetric(t *testing.T) {
	versions := []string{"1.0", "1.1", "1.2-alpha", "1.2", "2.0-rc.1", "2.0"}
	for _, a := range versions {
		for _, b := range versions {
			assert.Equal(t, Compare(a, b), -Compare(b, a), "Compare(%q, %q)", a, b)
		}
	}
}

func TestSortOrder(t *testing.T) {
	versions := []string{"1.2-alpha", "1.0", "2.0", "1.1", "1.2", "2.0-rc.1"}
	sort.Slice(versions, func(i, j int) bool { return Less(versions[i], versions[j]) })

	assert.Equal(t, []string{"1.0", "1.1", "1.2-alpha", "1.2", "2.0-rc.1", "2.0"}, versions)
}
