package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"valuewatcher/internal/config"
)

const redisScanPage = 50

// RedisNotificationLog keeps the dedup index in redis sorted sets scored by sent_at.
// Several replicas can share it without a database.
type RedisNotificationLog struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

var _ NotificationLog = (*RedisNotificationLog)(nil)

type redisRecord struct {
	ID           string    `json:"id"`
	Ticker       string    `json:"ticker"`
	Category     string    `json:"category"`
	ConditionKey string    `json:"condition_key"`
	SentAt       time.Time `json:"sent_at"`
	Channel      string    `json:"channel"`
	PayloadHash  string    `json:"payload_hash"`
	IsStrong     bool      `json:"is_strong"`
}

// NewRedisClient dials redis from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRedisNotificationLog wraps a client. Records older than retention are trimmed on append;
// zero keeps everything.
func NewRedisNotificationLog(client redis.UniversalClient, prefix string, retention time.Duration) *RedisNotificationLog {
	return &RedisNotificationLog{client: client, prefix: prefix, retention: retention}
}

func (l *RedisNotificationLog) conditionSet(ticker, conditionKey string) string {
	return l.prefix + "notif:key:" + ticker + ":" + conditionKey
}

func (l *RedisNotificationLog) tickerSet(ticker string) string {
	return l.prefix + "notif:ticker:" + ticker
}

func (l *RedisNotificationLog) allSet() string {
	return l.prefix + "notif:all"
}

// AppendNotification adds the record to its condition, ticker and global sets in one transaction.
func (l *RedisNotificationLog) AppendNotification(ctx context.Context, rec NotificationRecord) error {
	payload, err := json.Marshal(redisRecord(rec))
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	member := redis.Z{Score: float64(rec.SentAt.UnixMilli()), Member: string(payload)}
	keys := []string{l.conditionSet(rec.Ticker, rec.ConditionKey), l.tickerSet(rec.Ticker), l.allSet()}

	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.ZAdd(ctx, key, member)
			if l.retention > 0 {
				cutoff := rec.SentAt.Add(-l.retention).UnixMilli()
				pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append notification: %w", err)
	}
	return nil
}

// LastNotification returns the newest record for (ticker, condition_key), nil when absent.
func (l *RedisNotificationLog) LastNotification(ctx context.Context, ticker, conditionKey string) (*NotificationRecord, error) {
	members, err := l.client.ZRevRange(ctx, l.conditionSet(ticker, conditionKey), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("last notification: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	rec, err := decodeRedisRecord(members[0])
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// LatestNotificationWithPrefix walks the ticker's records newest first until one matches.
func (l *RedisNotificationLog) LatestNotificationWithPrefix(ctx context.Context, ticker, prefix string) (*NotificationRecord, error) {
	key := l.tickerSet(ticker)
	for start := int64(0); ; start += redisScanPage {
		members, err := l.client.ZRevRange(ctx, key, start, start+redisScanPage-1).Result()
		if err != nil {
			return nil, fmt.Errorf("latest notification: %w", err)
		}
		for _, member := range members {
			rec, err := decodeRedisRecord(member)
			if err != nil {
				return nil, err
			}
			if strings.HasPrefix(rec.ConditionKey, prefix) {
				return &rec, nil
			}
		}
		if len(members) < redisScanPage {
			return nil, nil
		}
	}
}

// ListRecentNotifications lists the newest records across tickers.
func (l *RedisNotificationLog) ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	members, err := l.client.ZRevRange(ctx, l.allSet(), 0, int64(limit-1)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("list recent notifications: %w", err)
	}
	out := make([]NotificationRecord, 0, len(members))
	for _, member := range members {
		rec, err := decodeRedisRecord(member)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeRedisRecord(member string) (NotificationRecord, error) {
	var rec redisRecord
	if err := json.Unmarshal([]byte(member), &rec); err != nil {
		return NotificationRecord{}, fmt.Errorf("decode notification: %w", err)
	}
	return NotificationRecord(rec), nil
}
