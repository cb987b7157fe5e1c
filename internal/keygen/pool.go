package keygen

import (
	"strings"
)

// PopPool splits the first non-empty entry off a newline-separated key
// pool. ok is false when the pool holds no entries.
func PopPool(pool string) (key, remainder string, ok bool) {
	lines := strings.Split(pool, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rest := make([]string, 0, len(lines)-i-1)
		for _, l := range lines[i+1:] {
			if strings.TrimSpace(l) != "" {
				rest = append(rest, strings.TrimSpace(l))
			}
		}
		return line, strings.Join(rest, "\n"), true
	}
	return "", "", false
}
