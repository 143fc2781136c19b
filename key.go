package smartfetch

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// KeyFunc derives the de-duplication key for a config. Two configs with equal
// method, URL, params and body must produce equal keys.
type KeyFunc func(Config) string

// DefaultKeyFunc hashes method, URL, canonically ordered params and the JSON
// form of the body with FNV-64a (body content additionally through SHA-256).
// Headers, timeouts and hooks are deliberately excluded: de-duplication is
// keyed on logical request identity, not transport mechanics.
func DefaultKeyFunc(cfg Config) string {
	h := fnv.New64a()

	method := strings.ToLower(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = "get"
	}
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(cfg.URL))
	h.Write([]byte{0})

	if len(cfg.Params) > 0 {
		keys := make([]string, 0, len(cfg.Params))
		for k := range cfg.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Write([]byte(k))
			h.Write([]byte{'='})
			h.Write([]byte(cfg.Params[k]))
			h.Write([]byte{'&'})
		}
	}
	h.Write([]byte{0})

	if cfg.Body != nil {
		bodyHash := sha256.New()
		if data, err := json.Marshal(cfg.Body); err == nil {
			bodyHash.Write(data)
		} else {
			// Unmarshalable bodies still get a deterministic digest.
			fmt.Fprintf(bodyHash, "%#v", cfg.Body)
		}
		h.Write(bodyHash.Sum(nil))
	}

	return strconv.FormatUint(h.Sum64(), 16)
}
