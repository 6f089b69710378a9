package updates

import (
	"context"
	"testing"

	"github.com/dreamware/loom/internal/codec"
	"github.com/dreamware/loom/internal/shardhash"
	"github.com/dreamware/loom/internal/store"
)

type counterState struct {
	H int
}

type addUpdate struct {
	Amount int
}

func TestQueuePartitionsByShard(t *testing.T) {
	h := shardhash.New(4)
	b := New[counterState, addUpdate](h)

	ids := []uint64{0, 1 << 62, 1<<63 + 5, 7}
	for _, id := range ids {
		b.Queue(id, addUpdate{Amount: 1})
	}
	if len(b.perShard) == 0 {
		t.Fatal("expected at least one shard with queued updates")
	}
	total := 0
	for _, items := range b.perShard {
		total += len(items)
	}
	if total != len(ids) {
		t.Errorf("total queued = %d, want %d", total, len(ids))
	}
}

func TestSpawnReturnsUniqueIDs(t *testing.T) {
	h := shardhash.New(2)
	b := New[counterState, addUpdate](h)
	seen := map[uint64]bool{}
	for i := 0; i < 20; i++ {
		id := b.Spawn(counterState{H: i})
		if seen[id] {
			t.Fatalf("duplicate spawn id %d", id)
		}
		seen[id] = true
	}
	if len(b.pop) != 20 {
		t.Errorf("pop len = %d, want 20", len(b.pop))
	}
}

func TestPushPreservesPerShardOrderAndClears(t *testing.T) {
	h := shardhash.New(1) // single shard: every id routes to shard 0
	b := New[counterState, addUpdate](h)

	for i := 1; i <= 5; i++ {
		b.Queue(uint64(i), addUpdate{Amount: i})
	}

	st := store.NewMemStore()
	ctx := context.Background()
	if err := b.Push(ctx, st); err != nil {
		t.Fatalf("Push: %v", err)
	}

	raw, err := st.LRange(ctx, store.KeyUpdates(0))
	if err != nil {
		t.Fatalf("LRange: %v", err)
	}
	if len(raw) != 5 {
		t.Fatalf("LRange len = %d, want 5", len(raw))
	}
	for i, data := range raw {
		item, err := codec.Decode[AgentUpdate[addUpdate]](data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		wantAmount := i + 1
		if item.Update.Amount != wantAmount {
			t.Errorf("item %d Amount = %d, want %d (insertion order not preserved)", i, item.Update.Amount, wantAmount)
		}
	}

	if len(b.perShard) != 0 {
		t.Error("expected perShard cleared after Push")
	}
}

func TestPushFlushesPopulationAndWorldMutations(t *testing.T) {
	h := shardhash.New(2)
	b := New[counterState, addUpdate](h)
	b.Spawn(counterState{H: 1})
	b.Kill(99, counterState{H: 2})
	b.QueueWorld(addUpdate{Amount: 7})

	st := store.NewMemStore()
	ctx := context.Background()
	if err := b.Push(ctx, st); err != nil {
		t.Fatalf("Push: %v", err)
	}

	popCard, _ := st.SCard(ctx, store.KeyUpdatesPopulation)
	if popCard != 2 {
		t.Errorf("updates:population cardinality = %d, want 2", popCard)
	}
	worldCard, _ := st.SCard(ctx, store.KeyUpdatesWorld)
	if worldCard != 1 {
		t.Errorf("updates:world cardinality = %d, want 1", worldCard)
	}
}
