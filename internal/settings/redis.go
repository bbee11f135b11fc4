package settings

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "figbridge:settings:"

// RedisStore keeps the blob in a Redis string so several hosts can share it.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore connects to addr, a host:port or a redis://, rediss:// or
// redis-sentinel:// URL.
func NewRedisStore(addr, key string) (*RedisStore, error) {
	opts, err := parseRedisURL(addr)
	if err != nil {
		return nil, err
	}
	if key == "" {
		key = DefaultKey
	}
	c := redis.NewUniversalClient(opts)
	if err := c.Ping(context.Background()).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &RedisStore{client: c, key: redisPrefix + key}, nil
}

func (r *RedisStore) Load(ctx context.Context) (json.RawMessage, error) {
	b, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

func (r *RedisStore) Save(ctx context.Context, blob json.RawMessage) error {
	if !json.Valid(blob) {
		return ErrInvalidBlob
	}
	return r.client.Set(ctx, r.key, []byte(blob), 0).Err()
}

func (r *RedisStore) Close() error { return r.client.Close() }

func parseDB(s string) (int, error) {
	db, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("redis: invalid db: %v", err)
	}
	return db, nil
}

// parseRedisURL maps addr onto UniversalOptions for single, cluster and
// sentinel deployments. A bare host:port is used as is.
func parseRedisURL(addr string) (*redis.UniversalOptions, error) {
	if !strings.Contains(addr, "://") {
		return &redis.UniversalOptions{Addrs: []string{addr}}, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}

	opts := &redis.UniversalOptions{Addrs: strings.Split(u.Host, ",")}
	if u.User != nil {
		opts.Username = u.User.Username()
		opts.Password, _ = u.User.Password()
	}
	q := u.Query()
	secure := strings.HasPrefix(u.Scheme, "rediss")

	switch u.Scheme {
	case "redis", "rediss":
		path := strings.TrimPrefix(u.Path, "/")
		if path == "" {
			path = q.Get("db")
		}
		if path != "" {
			if opts.DB, err = parseDB(path); err != nil {
				return nil, err
			}
		}
	case "redis-sentinel", "rediss-sentinel":
		opts.MasterName = strings.TrimPrefix(u.Path, "/")
		if v := q.Get("db"); v != "" {
			if opts.DB, err = parseDB(v); err != nil {
				return nil, err
			}
		}
		opts.SentinelUsername = q.Get("sentinel_username")
		opts.SentinelPassword = q.Get("sentinel_password")
	default:
		return nil, fmt.Errorf("redis: invalid URL scheme: %s", u.Scheme)
	}
	if secure {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}
