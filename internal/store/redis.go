package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis wraps redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Close closes the client.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

// unlock deletes the key only if it still holds our token.
var unlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock takes a short-lived lock with SET NX PX. ok is false when someone
// else holds it.
func (r *Redis) Lock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := r.Client.SetNX(ctx, "lock:"+key, token, ttl).Result()
	if err != nil || !ok {
		return nil, ok, err
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = unlock.Run(ctx, r.Client, []string{"lock:" + key}, token).Err()
	}
	return release, true, nil
}

// Board is the per-day live counter hash kept for the admin dashboard.
type Board map[string]int64

func boardKey(date string) string { return "board:" + date }

// BoardFields are the counters one committed event bumps: totals by type and
// by type and status, overall and for the branch.
func BoardFields(branch, typ, status string) []string {
	fields := []string{typ, typ + ":" + status}
	if branch != "" {
		prefix := "branch:" + branch + ":"
		fields = append(fields, prefix+typ, prefix+typ+":"+status)
	}
	return fields
}

// ForBranch returns the branch's counters with the branch prefix removed.
func (b Board) ForBranch(branch string) Board {
	prefix := "branch:" + branch + ":"
	out := Board{}
	for k, v := range b {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return out
}

// BumpBoard increments field on the board of date. Boards expire after a week.
func (r *Redis) BumpBoard(ctx context.Context, date string, fields ...string) error {
	pipe := r.Client.TxPipeline()
	for _, f := range fields {
		pipe.HIncrBy(ctx, boardKey(date), f, 1)
	}
	pipe.Expire(ctx, boardKey(date), 7*24*time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

// ReadBoard returns the counters of date.
func (r *Redis) ReadBoard(ctx context.Context, date string) (Board, error) {
	raw, err := r.Client.HGetAll(ctx, boardKey(date)).Result()
	if err != nil {
		return nil, err
	}
	b := Board{}
	for k, v := range raw {
		var n int64
		if _, err := fmt.Sscan(v, &n); err == nil {
			b[k] = n
		}
	}
	return b, nil
}

// PutJSON stores a serialized value with ttl.
func (r *Redis) PutJSON(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	return r.Client.Set(ctx, key, body, ttl).Err()
}

// GetJSON returns a stored value, or nil when missing.
func (r *Redis) GetJSON(ctx context.Context, key string) ([]byte, error) {
	b, err := r.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return b, err
}
