package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/Shilirayen01/sys-acquisition/internal/domain"
	"github.com/Shilirayen01/sys-acquisition/internal/ports"
)

// TagCache is the hot NodeID → Tag mapping in front of the repository.
// Lookups populate it lazily; misses are not cached, so a tag added in
// the store is visible on its next resolve. Changes to a tag that is
// already cached are seen only after Invalidate.
type TagCache struct {
	repo ports.MetadataRepository

	mu   sync.RWMutex
	tags map[string]domain.Tag
}

func NewTagCache(repo ports.MetadataRepository) *TagCache {
	return &TagCache{
		repo: repo,
		tags: make(map[string]domain.Tag),
	}
}

// Resolve returns the cached tag or consults the repository. A repository
// not-found is returned as ports.ErrNotFound and never negative-cached.
func (c *TagCache) Resolve(ctx context.Context, nodeID string) (domain.Tag, error) {
	c.mu.RLock()
	tag, ok := c.tags[nodeID]
	c.mu.RUnlock()
	if ok {
		return tag, nil
	}

	tag, err := c.repo.GetTagByNodeID(ctx, nodeID)
	if err != nil {
		return domain.Tag{}, err
	}

	// Concurrent resolvers may race here; last writer wins.
	c.mu.Lock()
	c.tags[nodeID] = tag
	c.mu.Unlock()
	return tag, nil
}

// Invalidate empties the mapping so subsequent resolves observe fresh
// repository data.
func (c *TagCache) Invalidate() {
	c.mu.Lock()
	c.tags = make(map[string]domain.Tag)
	c.mu.Unlock()
}

// Len reports the number of cached entries.
func (c *TagCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tags)
}

// IsNotFound reports whether a resolve failure is a plain miss rather
// than a repository error.
func IsNotFound(err error) bool {
	return errors.Is(err, ports.ErrNotFound)
}
