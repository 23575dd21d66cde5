// Package redis backs the fusion store with Redis so that several engine
// replicas share one view of recent evidence.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/hazard-fusion-service/internal/config"
	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "hazard:fusion"

	// maxWriteAttempts bounds optimistic retries when another writer touches
	// the index between WATCH and EXEC.
	maxWriteAttempts = 3
)

// Backend stores fusion records as a sorted set of record IDs scored by
// timestamp (milliseconds) plus a hash of ID to JSON record. It implements
// fusion.Backend.
type Backend struct {
	client   *goredis.Client
	indexKey string
	dataKey  string
	logger   *slog.Logger
}

// NewClient opens a client for the configured Redis server.
func NewClient(cfg *config.Config) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// NewBackend creates a backend using keys under prefix. An empty prefix uses
// "hazard:fusion".
func NewBackend(client *goredis.Client, prefix string, logger *slog.Logger) *Backend {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Backend{
		client:   client,
		indexKey: prefix + ":index",
		dataKey:  prefix + ":records",
		logger:   logger,
	}
}

// Append stores rec and removes every record older than cutoff in one
// MULTI/EXEC transaction guarded by WATCH on the index. A write that keeps
// losing the race returns domain.ErrStoreInconsistency.
func (b *Backend) Append(ctx context.Context, rec domain.SourceRecord, cutoff time.Time) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode source record: %w", err)
	}

	txf := func(tx *goredis.Tx) error {
		expired, err := tx.ZRangeByScore(ctx, b.indexKey, &goredis.ZRangeBy{
			Min: "-inf",
			Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
		}).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			if !rec.Timestamp.Before(cutoff) {
				pipe.ZAdd(ctx, b.indexKey, goredis.Z{Score: float64(rec.Timestamp.UnixMilli()), Member: rec.ID})
				pipe.HSet(ctx, b.dataKey, rec.ID, data)
			}
			if len(expired) > 0 {
				members := make([]any, len(expired))
				for i, id := range expired {
					members[i] = id
				}
				pipe.ZRem(ctx, b.indexKey, members...)
				pipe.HDel(ctx, b.dataKey, expired...)
			}
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err = b.client.Watch(ctx, txf, b.indexKey)
		if !errors.Is(err, goredis.TxFailedErr) {
			break
		}
		b.logger.Debug("fusion write conflict, retrying", "record_id", rec.ID, "attempt", attempt)
	}
	switch {
	case errors.Is(err, goredis.TxFailedErr):
		return fmt.Errorf("append %s after %d attempts: %w", rec.ID, maxWriteAttempts, domain.ErrStoreInconsistency)
	case err != nil:
		return fmt.Errorf("append %s: %w", rec.ID, err)
	}
	return nil
}

// Range returns records with timestamps in [from, to], oldest first.
func (b *Backend) Range(ctx context.Context, from, to time.Time) ([]domain.SourceRecord, error) {
	ids, err := b.client.ZRangeByScore(ctx, b.indexKey, &goredis.ZRangeBy{
		Min: strconv.FormatInt(from.UnixMilli(), 10),
		Max: strconv.FormatInt(to.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("range index: %w", err)
	}
	out := make([]domain.SourceRecord, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	values, err := b.client.HMGet(ctx, b.dataKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// Purged between the two reads.
			continue
		}
		var rec domain.SourceRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			b.logger.Warn("skipping corrupt fusion record", "record_id", ids[i], "error", err)
			continue
		}
		if rec.Timestamp.Before(from) || rec.Timestamp.After(to) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// CheckReadiness pings Redis.
func (b *Backend) CheckReadiness(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
