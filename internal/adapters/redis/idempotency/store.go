// Package idempotency stores replayable responses in Redis. Expiry is left to
// Redis: each record is written with the store's TTL.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Lumos-Programming/profile-api/internal/ports/out/clock"
	"github.com/Lumos-Programming/profile-api/internal/ports/out/idempotency"
)

const keyPrefix = "idem:"

type Store struct {
	rdb redis.Cmdable
	clk clock.Clock
	ttl time.Duration
}

// NewStore returns a store. ttl <= 0 writes keys without expiry.
func NewStore(rdb redis.Cmdable, clk clock.Clock, ttl time.Duration) *Store {
	return &Store{rdb: rdb, clk: clk, ttl: ttl}
}

type storedRecord struct {
	BodyHash    string    `json:"body_hash"`
	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Store) Get(ctx context.Context, fp idempotency.Fingerprint) (idempotency.Record, bool, error) {
	if s.rdb == nil {
		return idempotency.Record{}, false, errors.New("nil redis client")
	}
	data, err := s.rdb.Get(ctx, redisKey(fp)).Bytes()
	if err == redis.Nil {
		return idempotency.Record{}, false, nil
	}
	if err != nil {
		return idempotency.Record{}, false, err
	}
	var sr storedRecord
	if err := json.Unmarshal(data, &sr); err != nil {
		return idempotency.Record{}, false, err
	}
	return idempotency.Record{
		BodyHash:    sr.BodyHash,
		StatusCode:  sr.StatusCode,
		ContentType: sr.ContentType,
		Body:        sr.Body,
		CreatedAt:   sr.CreatedAt.UTC(),
	}, true, nil
}

func (s *Store) Put(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) error {
	if s.rdb == nil {
		return errors.New("nil redis client")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
		if s.clk != nil {
			rec.CreatedAt = s.clk.Now().UTC()
		}
	}
	data, err := json.Marshal(storedRecord{
		BodyHash:    rec.BodyHash,
		StatusCode:  rec.StatusCode,
		ContentType: rec.ContentType,
		Body:        rec.Body,
		CreatedAt:   rec.CreatedAt,
	})
	if err != nil {
		return err
	}
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	return s.rdb.Set(ctx, redisKey(fp), data, ttl).Err()
}

// redisKey escapes each part so "|" inside a key or route cannot collide.
func redisKey(fp idempotency.Fingerprint) string {
	parts := []string{string(fp.Subject), fp.Method, fp.Route, string(fp.Key)}
	for i, p := range parts {
		parts[i] = url.QueryEscape(p)
	}
	return keyPrefix + strings.Join(parts, "|")
}
