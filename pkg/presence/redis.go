// Package presence mirrors the gateway's online set into Redis so that other
// services can read it. The gateway Registry stays the source of truth.
package presence

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// OnlineKey is the Redis set holding online user ids.
const OnlineKey = "presence:online"

const queueSize = 1024

// SetClient is the subset of the Redis client used by the mirror.
type SetClient interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type op struct {
	user   string
	online bool
}

// RedisMirror applies presence transitions to the set from one goroutine, in
// the order they were reported.
type RedisMirror struct {
	rdb SetClient
	ops chan op
	log zerolog.Logger
}

func NewRedisMirror(rdb SetClient, log zerolog.Logger) *RedisMirror {
	return &RedisMirror{rdb: rdb, ops: make(chan op, queueSize), log: log}
}

func (m *RedisMirror) Online(userID string)  { m.enqueue(op{user: userID, online: true}) }
func (m *RedisMirror) Offline(userID string) { m.enqueue(op{user: userID, online: false}) }

func (m *RedisMirror) enqueue(o op) {
	select {
	case m.ops <- o:
	default:
		m.log.Warn().Str("user", o.user).Bool("online", o.online).Msg("Presence mirror queue full, dropping update")
	}
}

// Reset clears the set. A single gateway owns it, so whatever it holds at
// startup is stale.
func (m *RedisMirror) Reset(ctx context.Context) error {
	return errors.Wrap(m.rdb.Del(ctx, OnlineKey).Err(), "reset presence set")
}

// Run applies queued updates until ctx is done, then drains what is left.
func (m *RedisMirror) Run(ctx context.Context) {
	for {
		select {
		case o := <-m.ops:
			m.apply(ctx, o)
		case <-ctx.Done():
			for {
				select {
				case o := <-m.ops:
					m.apply(context.WithoutCancel(ctx), o)
				default:
					return
				}
			}
		}
	}
}

func (m *RedisMirror) apply(ctx context.Context, o op) {
	var err error
	if o.online {
		err = m.rdb.SAdd(ctx, OnlineKey, o.user).Err()
	} else {
		err = m.rdb.SRem(ctx, OnlineKey, o.user).Err()
	}
	if err != nil {
		m.log.Error().Err(err).Str("user", o.user).Bool("online", o.online).Msg("Failed to mirror presence")
	}
}

// Members returns the mirrored online users.
func Members(ctx context.Context, rdb SetClient) ([]string, error) {
	users, err := rdb.SMembers(ctx, OnlineKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "read presence set")
	}
	return users, nil
}
