package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"remo-voting/internal/config"
	"remo-voting/internal/metrics"
	"remo-voting/internal/notifier"
	"remo-voting/internal/repository"
	"remo-voting/internal/scheduler"
	"remo-voting/internal/service"
	"remo-voting/internal/service/auth"
	"remo-voting/pkg/database"
	"remo-voting/pkg/logger"
	"remo-voting/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           *database.PostgresDB
	RedisClient  *redis.Client
	Repositories *repository.Repositories
	Metrics      *metrics.Metrics
	Notifier     notifier.Notifier
	Scheduler    scheduler.Scheduler
	Services     *service.Services

	runner *scheduler.RedisScheduler

	mu        sync.Mutex
	stopSweep chan struct{}
	sweepDone chan struct{}
}

// New connects to the configured stores and wires the services. Without a
// DATABASE_URL the service runs on an in-memory store; without a REDIS_URL
// caching is off and lifecycle hooks rely on the local sweep.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	var (
		db    *database.PostgresDB
		repos *repository.Repositories
	)
	if cfg.DatabaseURL != "" {
		conn, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		db = conn
		repos = repository.NewPostgresRepositories(db)
		log.Info("Database connection established")
	} else {
		repos = repository.NewMemoryStore().Repositories()
		log.Warn("DATABASE_URL not configured, using in-memory store")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, log.Named("redis").Logger)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize Redis client, proceeding without caching")
		} else {
			redisClient = client
			log.Info("Redis client initialized successfully")
		}
	} else {
		log.Info("Redis URL not configured, proceeding without caching")
	}

	c, err := NewWithRepositories(cfg, log, repos, redisClient, service.SystemClock)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if db != nil {
			db.Close()
		}
		return nil, err
	}
	c.DB = db
	return c, nil
}

// NewWithRepositories wires the services over already opened stores.
// redisClient may be nil.
func NewWithRepositories(cfg *config.Config, log *logger.Logger, repos *repository.Repositories, redisClient *redis.Client, clock service.Clock) (*Container, error) {
	if log == nil {
		log = logger.NewNop()
	}

	scoring, err := scoringFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	cache := service.NewCacheService(redisClient, log.Named("cache").Logger)

	var (
		n      notifier.Notifier
		sched  scheduler.Scheduler
		runner *scheduler.RedisScheduler
		locker service.Locker
		keys   *redis.KeyBuilder
	)

	if len(cfg.KafkaBrokers) > 0 {
		n = notifier.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, log.Named("kafka").Logger)
	} else {
		n = notifier.NewLogNotifier(log.Named("notifier").Logger)
	}

	if redisClient != nil {
		runner = scheduler.NewRedisScheduler(redisClient, scheduler.Options{
			PollInterval:  cfg.SchedulerPollInterval,
			SweepInterval: cfg.SweepInterval,
		}, log.Named("scheduler").Logger, m)
		sched = runner
		locker = service.NewRedisLocker(redisClient)
		keys = redisClient.KeyBuilder
	} else {
		sched = scheduler.NewNoopScheduler(log.Named("scheduler").Logger)
		locker = service.NewLocalLocker()
		keys = redis.NewKeyBuilder(cfg.Environment)
	}

	lifecycle := service.NewLifecycleService(repos, n, sched, locker, keys, cache, service.LifecycleOptions{
		ReminderWindow:  cfg.ReminderWindow,
		ExtensionPeriod: cfg.ExtensionPeriod,
		ExtensionQuorum: cfg.ExtensionQuorum,
	}, m, log.Named("lifecycle").Logger, clock)
	if runner != nil {
		runner.Bind(lifecycle, lifecycle)
	}

	services := &service.Services{
		Auth:      auth.NewService(cfg.JWTSecret, log.Named("auth")),
		Voting:    service.NewVotingService(repos, scoring, cache, m, log.Named("voting").Logger, clock, cfg.AdminGroup),
		Polls:     service.NewPollService(repos, sched, cache, cfg.AdminGroup, cfg.DescriptionMinLength, log.Named("polls").Logger, clock),
		Comments:  service.NewCommentService(repos, log.Named("comments").Logger, clock),
		Lifecycle: lifecycle,
		Cache:     cache,
	}

	log.WithFields(map[string]interface{}{
		"scoring":      scoring.Name(),
		"results_live": cfg.ResultsLive,
		"redis":        redisClient != nil,
		"kafka":        len(cfg.KafkaBrokers) > 0,
	}).Info("Container initialized")

	return &Container{
		Config:       cfg,
		Logger:       log,
		RedisClient:  redisClient,
		Repositories: repos,
		Metrics:      m,
		Notifier:     n,
		Scheduler:    sched,
		Services:     services,
		runner:       runner,
	}, nil
}

func scoringFromConfig(cfg *config.Config) (service.ScoringPolicy, error) {
	var table []int
	if cfg.RangeScoring == service.ScoringTable {
		parsed, err := service.ParseScoringTable(cfg.RangeScoringTable)
		if err != nil {
			return nil, fmt.Errorf("invalid RANGE_SCORING_TABLE: %w", err)
		}
		table = parsed
	}
	return service.NewScoringPolicy(cfg.RangeScoring, table)
}

// Start launches background work. With Redis the scheduler runs the job and
// sweep loops; without it only the sweep runs, on this instance.
func (c *Container) Start(ctx context.Context) error {
	if c.runner != nil {
		return c.runner.Start(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopSweep != nil {
		return nil
	}
	c.stopSweep = make(chan struct{})
	c.sweepDone = make(chan struct{})
	go c.sweepLoop(ctx, c.stopSweep, c.sweepDone)
	return nil
}

func (c *Container) sweepLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.Config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := c.Services.Lifecycle.Sweep(ctx); err != nil {
				c.Logger.WithError(err).Warn("Lifecycle sweep finished with errors")
			}
		}
	}
}

// Close stops background work and releases connections
func (c *Container) Close(ctx context.Context) error {
	var errs []error

	if c.runner != nil {
		c.runner.Stop()
	}
	c.mu.Lock()
	if c.stopSweep != nil {
		close(c.stopSweep)
		<-c.sweepDone
		c.stopSweep = nil
	}
	c.mu.Unlock()

	if closer, ok := c.Notifier.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("notifier close: %w", err))
		}
	}

	if c.RedisClient != nil {
		healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := c.RedisClient.Health(healthCtx); err != nil {
			c.Logger.WithError(err).Warn("Redis health check failed before closing")
		}
		cancel()
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}

	if c.DB != nil {
		c.DB.Close()
	}

	return errors.Join(errs...)
}

// GetAuthService returns the auth service
func (c *Container) GetAuthService() service.AuthService {
	return c.Services.Auth
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}

// HealthChecks returns a probe per attached backing store
func (c *Container) HealthChecks() map[string]func(context.Context) error {
	checks := make(map[string]func(context.Context) error)
	if c.DB != nil {
		checks["database"] = c.DB.Health
	}
	if c.RedisClient != nil {
		checks["redis"] = c.RedisClient.Health
	}
	return checks
}
