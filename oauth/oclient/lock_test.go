package oclient

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestLocalLocker_MutualExclusion(t *testing.T) {
	l := NewLocalLocker()
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "k")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	if maxInside.Load() != 1 {
		t.Fatalf("max holders = %d, want 1", maxInside.Load())
	}
	if len(l.slots) != 0 {
		t.Errorf("slots should be cleaned up, got %d", len(l.slots))
	}
}

func TestLocalLocker_ContextCancel(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "k"); err == nil {
		t.Fatal("second Lock should fail when the context expires")
	}

	other, err := l.Lock(context.Background(), "other-key")
	if err != nil {
		t.Fatalf("independent key should lock: %v", err)
	}
	other()
}

// fakeLockRedis implements SET NX and the unlock script.
type fakeLockRedis struct {
	redis.Cmdable
	mu   sync.Mutex
	keys map[string]string
}

func (f *fakeLockRedis) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeLockRedis) EvalSha(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys[keys[0]] == args[0].(string) {
		delete(f.keys, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestRedisLocker(t *testing.T) {
	fake := &fakeLockRedis{keys: map[string]string{}}
	l := NewRedisLocker(fake, time.Second)
	l.poll = time.Millisecond

	unlock, err := l.Lock(context.Background(), "u1|twitter")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	for k := range fake.keys {
		if !strings.HasPrefix(k, redisLockPrefix) {
			t.Errorf("unexpected key %q", k)
		}
	}

	acquired := make(chan struct{})
	go func() {
		unlock2, err := l.Lock(context.Background(), "u1|twitter")
		if err != nil {
			t.Errorf("second Lock: %v", err)
			return
		}
		close(acquired)
		unlock2()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired the lock while it was held")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second holder never acquired the lock")
	}
}
