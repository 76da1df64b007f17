package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/Shilirayen01/sys-acquisition/internal/domain"
	"github.com/Shilirayen01/sys-acquisition/internal/ports"
)

type fakeRepo struct {
	tags  map[string]domain.Tag
	calls int
}

func (f *fakeRepo) ListActiveMachines(context.Context) ([]domain.Machine, error) { return nil, nil }
func (f *fakeRepo) GetMachine(context.Context, int32) (domain.Machine, error) {
	return domain.Machine{}, ports.ErrNotFound
}
func (f *fakeRepo) ListActiveTagsByMachine(context.Context, int32) ([]domain.Tag, error) {
	return nil, nil
}

func (f *fakeRepo) GetTagByNodeID(_ context.Context, nodeID string) (domain.Tag, error) {
	f.calls++
	t, ok := f.tags[nodeID]
	if !ok {
		return domain.Tag{}, fmt.Errorf("tag %q: %w", nodeID, ports.ErrNotFound)
	}
	return t, nil
}

func TestResolveCachesHits(t *testing.T) {
	repo := &fakeRepo{tags: map[string]domain.Tag{
		"ns=2;s=T": {ID: 1, MachineID: 2, Name: "temp", NodeID: "ns=2;s=T", IsActive: true},
	}}
	cache := NewTagCache(repo)

	for i := 0; i < 3; i++ {
		tag, err := cache.Resolve(context.Background(), "ns=2;s=T")
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		if tag.ID != 1 {
			t.Fatalf("tag id = %d", tag.ID)
		}
	}
	if repo.calls != 1 {
		t.Errorf("repository hit %d times, want 1", repo.calls)
	}
}

func TestResolveMissNotNegativeCached(t *testing.T) {
	repo := &fakeRepo{tags: map[string]domain.Tag{}}
	cache := NewTagCache(repo)

	if _, err := cache.Resolve(context.Background(), "ns=2;s=X"); !IsNotFound(err) {
		t.Fatalf("err = %v, want not-found", err)
	}

	// The tag appears later; the very next resolve must see it without an
	// invalidation in between.
	repo.tags["ns=2;s=X"] = domain.Tag{ID: 7, NodeID: "ns=2;s=X"}
	tag, err := cache.Resolve(context.Background(), "ns=2;s=X")
	if err != nil {
		t.Fatalf("resolve after insert: %v", err)
	}
	if tag.ID != 7 {
		t.Fatalf("tag id = %d, want 7", tag.ID)
	}
	if repo.calls != 2 {
		t.Errorf("repository hit %d times, want 2", repo.calls)
	}
}

func TestInvalidateEmptiesMapping(t *testing.T) {
	repo := &fakeRepo{tags: map[string]domain.Tag{
		"ns=2;s=T": {ID: 1, NodeID: "ns=2;s=T"},
	}}
	cache := NewTagCache(repo)

	cache.Resolve(context.Background(), "ns=2;s=T")
	if cache.Len() != 1 {
		t.Fatalf("len = %d, want 1", cache.Len())
	}

	cache.Invalidate()
	if cache.Len() != 0 {
		t.Fatalf("len = %d after invalidate, want 0", cache.Len())
	}

	cache.Resolve(context.Background(), "ns=2;s=T")
	if repo.calls != 2 {
		t.Errorf("repository hit %d times, want reload after invalidate", repo.calls)
	}
}
