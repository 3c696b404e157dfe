package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisNotificationLog(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	ctx := context.Background()
	log := NewRedisNotificationLog(startRedis(t), "vw:test:", 0)

	ordinary := NotificationRecord{ID: "a", Ticker: "7203:TSE", Category: "PER割安", ConditionKey: "PER:1Y+3M", SentAt: t0, Channel: "DISCORD", PayloadHash: "h1"}
	strong := NotificationRecord{ID: "b", Ticker: "7203:TSE", Category: "超PER割安", ConditionKey: "PER:1Y+3M+1W", SentAt: t0.Add(30 * time.Minute), Channel: "DISCORD", PayloadHash: "h2", IsStrong: true}
	unknown := NotificationRecord{ID: "c", Ticker: "7203:TSE", Category: "データ不明", ConditionKey: "DATA_UNKNOWN:7203:TSE", SentAt: t0.Add(40 * time.Minute), Channel: "DISCORD", PayloadHash: "h3"}
	for _, rec := range []NotificationRecord{ordinary, strong, unknown, ordinary} {
		require.NoError(t, log.AppendNotification(ctx, rec))
	}

	last, err := log.LastNotification(ctx, "7203:TSE", "PER:1Y+3M")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "a", last.ID)
	assert.True(t, last.SentAt.Equal(t0))

	latest, err := log.LatestNotificationWithPrefix(ctx, "7203:TSE", "PER:")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "b", latest.ID)

	none, err := log.LatestNotificationWithPrefix(ctx, "7203:TSE", "PSR:")
	require.NoError(t, err)
	assert.Nil(t, none)

	recent, err := log.ListRecentNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "c", recent[0].ID)
}

func TestRedisNotificationLogRetention(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	ctx := context.Background()
	log := NewRedisNotificationLog(startRedis(t), "vw:retention:", 24*time.Hour)

	old := NotificationRecord{ID: "old", Ticker: "7203:TSE", ConditionKey: "PER:1Y+3M", SentAt: t0.Add(-48 * time.Hour)}
	fresh := NotificationRecord{ID: "new", Ticker: "7203:TSE", ConditionKey: "PER:1Y+3M", SentAt: t0}
	require.NoError(t, log.AppendNotification(ctx, old))
	require.NoError(t, log.AppendNotification(ctx, fresh))

	recent, err := log.ListRecentNotifications(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "new", recent[0].ID)
}
