package retention

import (
	"context"

	"github.com/patrickmn/go-cache"
)

// CacheVacuumer adapts a go-cache instance to ReadModelVacuumer. It is
// meant to sit in front of a read-model projection of the defense file
// (e.g. a per-project summary used to render a dashboard) — never the
// append-only log itself, which pkg/database.DefenseFileStore owns and
// never forgets. go-cache already expires entries on its own janitor
// goroutine; Vacuum explicitly evicts any entry whose key names a project
// already in a terminal lifecycle state and reports how many it evicted.
type CacheVacuumer struct {
	cache           *cache.Cache
	isProjectClosed func(projectID string) bool
}

// NewCacheVacuumer builds a CacheVacuumer. isProjectClosed is consulted
// per cache key (the project ID) to decide whether its entry should be
// evicted even though its TTL hasn't lapsed yet.
func NewCacheVacuumer(c *cache.Cache, isProjectClosed func(projectID string) bool) *CacheVacuumer {
	return &CacheVacuumer{cache: c, isProjectClosed: isProjectClosed}
}

// Vacuum evicts entries for closed projects and returns the eviction count.
func (v *CacheVacuumer) Vacuum(_ context.Context) (int, error) {
	if v.isProjectClosed == nil {
		return 0, nil
	}
	evicted := 0
	for projectID := range v.cache.Items() {
		if v.isProjectClosed(projectID) {
			v.cache.Delete(projectID)
			evicted++
		}
	}
	return evicted, nil
}
