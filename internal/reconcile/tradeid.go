package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// BrokerTradeID derives the idempotency key for a trade from the ids of every
// contributing fill. The ids are de-duplicated and sorted first, so the same
// fill set always produces the same key no matter how many times or in what
// order the window is re-fetched.
func BrokerTradeID(fillIDs []string) string {
	seen := make(map[string]struct{}, len(fillIDs))
	ids := make([]string, 0, len(fillIDs))
	for _, id := range fillIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sum := sha256.Sum256([]byte(strings.Join(ids, "|")))
	return hex.EncodeToString(sum[:])
}
