package stations

import "strings"

// Join concatenates chunk texts with one space, in the given order.
// Words cut at a chunk seam are left as they are.
func Join(texts []string) string {
	return strings.Join(texts, " ")
}
