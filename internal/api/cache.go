package api

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// metadataCache keeps per-question constants (theme information and
// demographic options) so that every filter change does not refetch them.
type metadataCache struct {
	cache *gocache.Cache
}

func newMetadataCache(ttl time.Duration) *metadataCache {
	if ttl <= 0 {
		return &metadataCache{}
	}
	return &metadataCache{cache: gocache.New(ttl, 2*ttl)}
}

func metadataKey(kind string, req PageRequest) string {
	return "consult:v1:" + kind + ":" + req.Consultation + "/" + req.Question
}

func (m *metadataCache) themes(key string) (*themeInfoBody, bool) {
	if m.cache == nil {
		return nil, false
	}
	if v, ok := m.cache.Get(key); ok {
		body, ok := v.(*themeInfoBody)
		return body, ok
	}
	return nil, false
}

func (m *metadataCache) demographics(key string) (*demographicsBody, bool) {
	if m.cache == nil {
		return nil, false
	}
	if v, ok := m.cache.Get(key); ok {
		body, ok := v.(*demographicsBody)
		return body, ok
	}
	return nil, false
}

func (m *metadataCache) set(key string, value any) {
	if m.cache == nil {
		return
	}
	m.cache.SetDefault(key, value)
}
