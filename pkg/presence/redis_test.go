package presence

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeSet records calls and keeps the set in memory.
type fakeSet struct {
	mu    sync.Mutex
	calls []string
	set   map[string]bool
}

func newFakeSet() *fakeSet { return &fakeSet{set: make(map[string]bool)} }

func (f *fakeSet) SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range members {
		f.calls = append(f.calls, "SADD "+key+" "+m.(string))
		f.set[m.(string)] = true
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(members)))
	return cmd
}

func (f *fakeSet) SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range members {
		f.calls = append(f.calls, "SREM "+key+" "+m.(string))
		delete(f.set, m.(string))
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(members)))
	return cmd
}

func (f *fakeSet) SMembers(ctx context.Context, key string) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for m := range f.set {
		out = append(out, m)
	}
	sort.Strings(out)
	cmd := redis.NewStringSliceCmd(ctx)
	cmd.SetVal(out)
	return cmd
}

func (f *fakeSet) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "DEL")
	f.set = make(map[string]bool)
	return redis.NewIntCmd(ctx)
}

func (f *fakeSet) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestRedisMirror_AppliesUpdatesInOrder(t *testing.T) {
	req := require.New(t)
	rdb := newFakeSet()
	m := NewRedisMirror(rdb, zerolog.Nop())
	req.NoError(m.Reset(context.Background()))

	// Given a reconnect sequence reported before the worker runs
	m.Online("alice")
	m.Online("bob")
	m.Offline("alice")
	m.Online("alice")
	m.Offline("bob")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	// Then the set ends up matching the last transition of each user
	req.Eventually(func() bool { return len(rdb.snapshot()) == 6 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	req.Equal([]string{
		"DEL",
		"SADD presence:online alice",
		"SADD presence:online bob",
		"SREM presence:online alice",
		"SADD presence:online alice",
		"SREM presence:online bob",
	}, rdb.snapshot())

	users, err := Members(context.Background(), rdb)
	req.NoError(err)
	req.Equal([]string{"alice"}, users)
}

func TestRedisMirror_DrainsOnShutdown(t *testing.T) {
	req := require.New(t)
	rdb := newFakeSet()
	m := NewRedisMirror(rdb, zerolog.Nop())
	m.Online("carol")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Run(ctx)

	users, err := Members(context.Background(), rdb)
	req.NoError(err)
	req.Equal([]string{"carol"}, users)
}
