package events

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ActivityKey is the sorted set of user ids scored by last activity in unix
// milliseconds.
const ActivityKey = "activity:last_active"

type ScoreClient interface {
	ZAddArgs(ctx context.Context, key string, args redis.ZAddArgs) *redis.IntCmd
	ZScore(ctx context.Context, key, member string) *redis.FloatCmd
}

// Activity records when users last sent a message.
type Activity struct {
	rdb ScoreClient
}

func NewActivity(rdb ScoreClient) *Activity {
	return &Activity{rdb: rdb}
}

// Record marks the sender as active at the message time. Older events never
// move the timestamp backwards.
func (a *Activity) Record(ctx context.Context, ev MessageCreated) error {
	err := a.rdb.ZAddArgs(ctx, ActivityKey, redis.ZAddArgs{
		GT: true,
		Members: []redis.Z{{
			Score:  float64(ev.Message.CreatedAt.UnixMilli()),
			Member: ev.Message.SenderID,
		}},
	}).Err()
	return errors.Wrapf(err, "record activity of %s", ev.Message.SenderID)
}

// LastActive returns the last activity of user; ok is false if none is known.
func (a *Activity) LastActive(ctx context.Context, user string) (time.Time, bool, error) {
	score, err := a.rdb.ZScore(ctx, ActivityKey, user).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "read activity of %s", user)
	}
	return time.UnixMilli(int64(score)).UTC(), true, nil
}
