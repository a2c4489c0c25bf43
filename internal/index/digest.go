package index

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// InventoryDigest returns a sha256 (hex) over the sorted, newline separated
// key set. The listing order does not matter.
func InventoryDigest(keys []string) string {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	h := sha256.New()
	for _, k := range sorted {
		h.Write([]byte(k))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
