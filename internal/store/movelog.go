package store

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// MoveLog appends each accepted move of a live match to Redis. The log
// is short-term: it exists so the final move list can be archived once,
// and the key expires on its own if the process dies mid-match.
type MoveLog struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewMoveLog(redisURL string, ttl time.Duration) (*MoveLog, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for move log")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MoveLog{rdb: rdb, ttl: ttl}, nil
}

func (m *MoveLog) Close() error {
	if m == nil || m.rdb == nil {
		return nil
	}
	return m.rdb.Close()
}

// Append stores one move token at the tail of the match's list.
func (m *MoveLog) Append(ctx context.Context, matchID, token string) error {
	key := movesKey(matchID)
	if err := m.rdb.RPush(ctx, key, token).Err(); err != nil {
		return err
	}
	return m.rdb.Expire(ctx, key, m.ttl).Err()
}

// All returns the match's move tokens in play order.
func (m *MoveLog) All(ctx context.Context, matchID string) ([]string, error) {
	return m.rdb.LRange(ctx, movesKey(matchID), 0, -1).Result()
}

// Clear drops the log once the match has been archived.
func (m *MoveLog) Clear(ctx context.Context, matchID string) error {
	return m.rdb.Del(ctx, movesKey(matchID)).Err()
}

func movesKey(matchID string) string { return "game:moves:" + strings.TrimSpace(matchID) }

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
