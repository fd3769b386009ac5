package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type record struct {
	ID    string `json:"id"`
	Score float64 `json:"score"`
}

// exerciseKV runs the shared KV contract against any backend.
func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := kv.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("PutAndGet", func(t *testing.T) {
		in := record{ID: "r1", Score: 0.75}
		if err := kv.Put(ctx, "contracts", "r1", in); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		var out record
		if err := kv.Get(ctx, "contracts", "r1", &out); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if out != in {
			t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		var out record
		if err := kv.Get(ctx, "contracts", "absent", &out); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("PutReplaces", func(t *testing.T) {
		if err := kv.Put(ctx, "contracts", "r1", record{ID: "r1", Score: 0.9}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		var out record
		if err := kv.Get(ctx, "contracts", "r1", &out); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if out.Score != 0.9 {
			t.Errorf("expected replaced score 0.9, got %v", out.Score)
		}
	})

	t.Run("KeysIsolatedByBucket", func(t *testing.T) {
		if err := kv.Put(ctx, "delegation", "agent-1", record{ID: "agent-1"}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		keys, err := kv.Keys(ctx, "delegation")
		if err != nil {
			t.Fatalf("Keys failed: %v", err)
		}
		if len(keys) != 1 || keys[0] != "agent-1" {
			t.Errorf("unexpected keys: %v", keys)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := kv.Delete(ctx, "contracts", "r1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		var out record
		if err := kv.Get(ctx, "contracts", "r1", &out); err != ErrNotFound {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		// Deleting again is not an error.
		if err := kv.Delete(ctx, "contracts", "r1"); err != nil {
			t.Errorf("repeated delete failed: %v", err)
		}
	})
}

func TestMemoryKV(t *testing.T) {
	kv := NewMemoryKV()
	defer kv.Close()
	exerciseKV(t, kv)
}

func TestMemoryKV_ClosedStore(t *testing.T) {
	kv := NewMemoryKV()
	kv.Close()

	ctx := context.Background()
	if err := kv.Put(ctx, "b", "k", record{}); err != ErrStoreClosed {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
	if err := kv.Ping(ctx); err != ErrStoreClosed {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
}

func TestRedisKV(t *testing.T) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	kv := NewRedisKVFromClient(client, "agentswarm-test:")
	defer kv.Close()

	exerciseKV(t, kv)
}

func TestNew_DefaultsToMemory(t *testing.T) {
	kv, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer kv.Close()

	if _, ok := kv.(*MemoryKV); !ok {
		t.Errorf("expected MemoryKV, got %T", kv)
	}
}
