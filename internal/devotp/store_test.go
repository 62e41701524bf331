package devotp

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_PutGet(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	store.Put(ctx, "op-1", "123456", time.Now().Add(5*time.Minute))

	code, ok := store.Get(ctx, "op-1")
	if !ok {
		t.Fatal("Get should return code after Put")
	}
	if code != "123456" {
		t.Errorf("code = %q, want %q", code, "123456")
	}
}

func TestMemoryStore_Get_ReturnsFalseWhenMissing(t *testing.T) {
	code, ok := NewMemoryStore(nil).Get(context.Background(), "nonexistent")
	if ok || code != "" {
		t.Errorf("Get missing = %q, %v; want empty, false", code, ok)
	}
}

func TestMemoryStore_PutReplaces(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()
	exp := time.Now().Add(time.Minute)
	store.Put(ctx, "op-1", "111111", exp)
	store.Put(ctx, "op-1", "222222", exp)
	if code, _ := store.Get(ctx, "op-1"); code != "222222" {
		t.Errorf("code = %q, want %q", code, "222222")
	}
}

func TestMemoryStore_ExpirationBoundary(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	store := NewMemoryStore(func() time.Time { return now })
	ctx := context.Background()

	store.Put(ctx, "op-1", "123456", now.Add(time.Second))
	if _, ok := store.Get(ctx, "op-1"); !ok {
		t.Fatal("code should be readable before expiry")
	}
	now = now.Add(time.Second)
	if _, ok := store.Get(ctx, "op-1"); ok {
		t.Error("code should be gone exactly at expiry")
	}
	store.mu.RLock()
	_, present := store.m["op-1"]
	store.mu.RUnlock()
	if present {
		t.Error("expired entry should be removed on read")
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()
	store.Put(ctx, "op-1", "123456", time.Now().Add(time.Minute))
	store.Delete(ctx, "op-1")
	store.Delete(ctx, "never-stored")
	if _, ok := store.Get(ctx, "op-1"); ok {
		t.Error("Get after Delete should return false")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()
	exp := time.Now().Add(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("op-%d", i)
			store.Put(ctx, id, fmt.Sprintf("%06d", i), exp)
			if _, ok := store.Get(ctx, id); !ok {
				t.Errorf("Get(%q) should find the code", id)
			}
		}(i)
	}
	wg.Wait()
}
