package container

import (
	"context"
	"testing"
	"time"

	"remo-voting/internal/config"
	"remo-voting/internal/notifier"
	"remo-voting/internal/repository"
	"remo-voting/internal/scheduler"
	"remo-voting/internal/service"
	"remo-voting/pkg/logger"
	"remo-voting/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment:           "test",
		JWTSecret:             "test-secret",
		AdminGroup:            "Admin",
		RangeScoring:          "borda",
		KafkaTopic:            "remo.test",
		SchedulerPollInterval: time.Second,
		SweepInterval:         time.Hour,
		ReminderWindow:        24 * time.Hour,
		ExtensionPeriod:       48 * time.Hour,
		ExtensionQuorum:       0.5,
	}
}

func TestNew_InMemoryWithoutRedis(t *testing.T) {
	c, err := New(context.Background(), testConfig(), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	assert.Nil(t, c.DB)
	assert.False(t, c.HasRedis())
	assert.IsType(t, &scheduler.NoopScheduler{}, c.Scheduler)
	assert.IsType(t, &notifier.LogNotifier{}, c.Notifier)
	assert.False(t, c.Services.Cache.Enabled())
	assert.NotNil(t, c.GetAuthService())
	assert.NotNil(t, c.Services.Voting)
	assert.NotNil(t, c.Services.Polls)
	assert.NotNil(t, c.Services.Comments)
	assert.NotNil(t, c.Services.Lifecycle)
	assert.Empty(t, c.HealthChecks())
}

func TestNewWithRepositories_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.NewClient("redis://"+mr.Addr(), "test", nil)
	require.NoError(t, err)

	c, err := NewWithRepositories(testConfig(), logger.NewNop(), repository.NewMemoryStore().Repositories(), client, service.SystemClock)
	require.NoError(t, err)

	assert.True(t, c.HasRedis())
	assert.IsType(t, &scheduler.RedisScheduler{}, c.Scheduler)
	assert.True(t, c.Services.Cache.Enabled())
	assert.Contains(t, c.HealthChecks(), "redis")

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Close(context.Background()))
}

func TestNewWithRepositories_Kafka(t *testing.T) {
	cfg := testConfig()
	cfg.KafkaBrokers = []string{"localhost:9092"}

	c, err := NewWithRepositories(cfg, logger.NewNop(), repository.NewMemoryStore().Repositories(), nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &notifier.KafkaNotifier{}, c.Notifier)
	assert.NoError(t, c.Close(context.Background()))
}

func TestNewWithRepositories_Scoring(t *testing.T) {
	tests := []struct {
		name    string
		scoring string
		table   string
		wantErr bool
	}{
		{name: "borda", scoring: "borda"},
		{name: "plurality", scoring: "plurality"},
		{name: "table", scoring: "table", table: "5,3,1"},
		{name: "bad table", scoring: "table", table: "5,x", wantErr: true},
		{name: "unknown", scoring: "approval", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.RangeScoring = tt.scoring
			cfg.RangeScoringTable = tt.table

			_, err := NewWithRepositories(cfg, nil, repository.NewMemoryStore().Repositories(), nil, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestContainer_LocalSweepStartStop(t *testing.T) {
	cfg := testConfig()
	cfg.SweepInterval = 10 * time.Millisecond

	c, err := NewWithRepositories(cfg, logger.NewNop(), repository.NewMemoryStore().Repositories(), nil, nil)
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- c.Close(context.Background()) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close did not stop the sweep loop")
	}
}
