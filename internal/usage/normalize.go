package usage

import (
	"fmt"
	"net/url"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultNormalizeCacheSize is used when no cache size is configured.
const DefaultNormalizeCacheSize = 512

// Normalize maps user input to a site key: the lower-cased hostname when
// input parses as a URL with a host, otherwise the lower-cased input itself.
// Bare names like "youtube.com" take the fallback path and still key correctly.
// Surrounding whitespace is ignored. Every lookup by key goes through here.
func Normalize(input string) string {
	input = strings.TrimSpace(input)
	u, err := url.Parse(input)
	if err == nil {
		if host := u.Hostname(); host != "" {
			return strings.ToLower(host)
		}
	}
	return strings.ToLower(input)
}

// Normalizer caches Normalize results. The gateway normalizes every
// navigation, and the set of hosts seen is small.
type Normalizer struct {
	cache *lru.Cache[string, string]
}

// NewNormalizer creates a normalizer holding up to size results.
func NewNormalizer(size int) (*Normalizer, error) {
	if size <= 0 {
		size = DefaultNormalizeCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create normalize cache: %w", err)
	}
	return &Normalizer{cache: cache}, nil
}

// Normalize returns the site key for input.
func (n *Normalizer) Normalize(input string) string {
	if key, ok := n.cache.Get(input); ok {
		return key
	}
	key := Normalize(input)
	n.cache.Add(input, key)
	return key
}
