package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ParticipantSource is the store lookup the cache sits in front of.
type ParticipantSource interface {
	GetChatParticipants(ctx context.Context, chatID int) (int, int, error)
}

// Participants caches chat membership in Redis. A chat's two members never
// change, so entries only expire to bound memory.
type Participants struct {
	source ParticipantSource
	client redis.UniversalClient
	ttl    time.Duration
	log    *zap.Logger
}

// NewParticipants wraps source. A nil client disables caching.
func NewParticipants(source ParticipantSource, client redis.UniversalClient, ttl time.Duration, log *zap.Logger) *Participants {
	return &Participants{source: source, client: client, ttl: ttl, log: log}
}

// NewRedisClient returns nil when addr is empty.
func NewRedisClient(addr, password string) redis.UniversalClient {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

func participantsKey(chatID int) string {
	return "chat:participants:" + strconv.Itoa(chatID)
}

// GetChatParticipants serves from Redis when possible and falls back to the
// source on a miss or any Redis error.
func (p *Participants) GetChatParticipants(ctx context.Context, chatID int) (int, int, error) {
	if p.client == nil {
		return p.source.GetChatParticipants(ctx, chatID)
	}

	key := participantsKey(chatID)
	val, err := p.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if a, b, perr := decodePair(val); perr == nil {
			return a, b, nil
		}
		p.log.Warn("discarding malformed participant cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		p.log.Warn("participant cache read failed", zap.String("key", key), zap.Error(err))
	}

	a, b, err := p.source.GetChatParticipants(ctx, chatID)
	if err != nil {
		return 0, 0, err
	}
	if err := p.client.Set(ctx, key, encodePair(a, b), p.ttl).Err(); err != nil {
		p.log.Warn("participant cache write failed", zap.String("key", key), zap.Error(err))
	}
	return a, b, nil
}

func encodePair(a, b int) string {
	return strconv.Itoa(a) + ":" + strconv.Itoa(b)
}

func decodePair(val string) (int, int, error) {
	left, right, ok := strings.Cut(val, ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed pair %q", val)
	}
	a, err := strconv.Atoi(left)
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.Atoi(right)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}
