package redis

import (
	"context"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"rentalhub/internal/domain/shared/errs"
)

// Connect parses a redis:// URL, tunes the pool and checks the connection.
func Connect(ctx context.Context, url string, logger *slog.Logger) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(url)
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, err, "redis: parse url")
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 5
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := goredis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errs.Wrap(errs.KindTransient, err, "redis: ping")
	}
	if logger != nil {
		logger.Info("redis connected", "addr", opt.Addr, "db", opt.DB)
	}
	return client, nil
}
