package storage

import "fmt"

// jsonCanon builds a stable canonical key from a handful of ordered
// scalars; used for the Pattern/Synergy uniqueness invariants instead of
// round-tripping through encoding/json (which does not guarantee map key
// order for arbitrary metadata, and these metadata shapes are small fixed
// tuples anyway).
func jsonCanon(parts ...interface{}) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "|"
		}
		out += fmt.Sprintf("%v", p)
	}
	return out
}
