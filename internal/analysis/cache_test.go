package analysis

import (
	"testing"

	"github.com/freeeve/evaltrainer/internal/uci"
)

func completeResult(id uint64, best string) *Result {
	return &Result{
		RequestID: id,
		Lines: map[int]uci.Info{
			1: {Rank: 1, Depth: 18, Score: uci.Score{Value: 34}, PV: []string{best}},
		},
		BestMove: best,
		Complete: true,
	}
}

func TestCacheRoundTrip(t *testing.T) {
	c := NewCache(8)
	key := Key("fen", []string{"e2e4"}, 18, 1)

	c.Put(key, completeResult(1, "e2e4"))

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.BestMove != "e2e4" || !got.Complete {
		t.Errorf("got %+v", got)
	}
	if got.Lines[1].Score != (uci.Score{Value: 34}) {
		t.Errorf("line score = %+v", got.Lines[1].Score)
	}
}

func TestCacheRejectsPartialResults(t *testing.T) {
	c := NewCache(8)
	key := Key("fen", nil, 18, 1)

	partial := completeResult(1, "e2e4")
	partial.Complete = false
	c.Put(key, partial)

	if _, ok := c.Get(key); ok {
		t.Fatal("partial result must not be cached")
	}
}

func TestCacheLRUEviction(t *testing.T) {
	c := NewCache(2)
	k1 := Key("f1", nil, 18, 1)
	k2 := Key("f2", nil, 18, 1)
	k3 := Key("f3", nil, 18, 1)

	c.Put(k1, completeResult(1, "a2a3"))
	c.Put(k2, completeResult(2, "b2b3"))
	c.Put(k3, completeResult(3, "c2c3"))

	if _, ok := c.Get(k1); ok {
		t.Error("k1 should have been evicted")
	}
	if _, ok := c.Get(k2); !ok {
		t.Error("k2 should remain")
	}
	if _, ok := c.Get(k3); !ok {
		t.Error("k3 should remain")
	}
}

func TestCacheGetRefreshesRecency(t *testing.T) {
	c := NewCache(2)
	k1 := Key("f1", nil, 18, 1)
	k2 := Key("f2", nil, 18, 1)
	k3 := Key("f3", nil, 18, 1)

	c.Put(k1, completeResult(1, "a2a3"))
	c.Put(k2, completeResult(2, "b2b3"))
	if _, ok := c.Get(k1); !ok {
		t.Fatal("expected k1 hit")
	}
	c.Put(k3, completeResult(3, "c2c3"))

	// k2 was the least recently used after the k1 read.
	if _, ok := c.Get(k2); ok {
		t.Error("k2 should have been evicted")
	}
	if _, ok := c.Get(k1); !ok {
		t.Error("k1 should remain")
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache(4)
	key := Key("fen", nil, 18, 1)
	c.Put(key, completeResult(1, "e2e4"))

	c.Invalidate(key)
	if _, ok := c.Get(key); ok {
		t.Error("entry should be gone after Invalidate")
	}

	c.Put(key, completeResult(1, "e2e4"))
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d", c.Len())
	}
}

func TestKeyIsPure(t *testing.T) {
	a := Key("rnbq", []string{"e2e4", "e7e5"}, 18, 2)
	b := Key("rnbq", []string{"e2e4", "e7e5"}, 18, 2)
	if a != b {
		t.Errorf("identical inputs hashed differently: %x vs %x", a, b)
	}
}

func TestKeyDistinguishesParameters(t *testing.T) {
	base := Key("rnbq", []string{"e2e4"}, 18, 1)
	tests := []struct {
		name string
		key  uint64
	}{
		{"depth", Key("rnbq", []string{"e2e4"}, 20, 1)},
		{"multipv", Key("rnbq", []string{"e2e4"}, 18, 2)},
		{"fen", Key("rnbr", []string{"e2e4"}, 18, 1)},
		{"moves", Key("rnbq", []string{"e2e4", "e7e5"}, 18, 1)},
		{"no moves", Key("rnbq", nil, 18, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.key == base {
				t.Errorf("key collides with base for differing %s", tt.name)
			}
		})
	}
}

func TestCacheResultsAreIsolated(t *testing.T) {
	c := NewCache(4)
	key := Key("fen", nil, 18, 1)
	c.Put(key, completeResult(1, "e2e4"))

	first, _ := c.Get(key)
	first.Lines[2] = uci.Info{Rank: 2}

	second, _ := c.Get(key)
	if len(second.Lines) != 1 {
		t.Error("mutating a returned result leaked into the cache")
	}
}
