// Package app opens the backends selected by configuration. Both binaries
// share it so the API and the worker always agree on where data lives.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"geoattend/internal/api/handlers"
	"geoattend/internal/attendance"
	"geoattend/internal/cloudinary"
	"geoattend/internal/config"
	"geoattend/internal/imagestore"
	"geoattend/internal/queue"
	"geoattend/internal/report"
	"geoattend/internal/store"
)

// Records is everything the services need from persistence.
type Records interface {
	attendance.Store
	attendance.LeaveStore
	attendance.AccountStore
	report.Source
}

// Backends are the opened collaborators. Redis is nil when REDIS_ADDR is
// empty; DB is nil with the memory store.
type Backends struct {
	DB      *store.DB
	Redis   *store.Redis
	Records Records
	Queue   queue.Queue
	// InProcessQueue is true when jobs never leave this process, so the
	// API has to run the worker itself.
	InProcessQueue bool
	Images         *imagestore.Store
	Checks         map[string]handlers.Check

	closers []func()
}

// Open connects every configured backend. consumer names the durable
// JetStream consumer and is ignored by other queue backends.
func Open(ctx context.Context, cfg config.App, consumer string) (*Backends, error) {
	b := &Backends{Checks: map[string]handlers.Check{}}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	switch cfg.StoreBackend {
	case "postgres":
		db, err := store.NewDB(ctx, cfg.DatabaseURL, cfg.DBPool)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, func() { _ = db.Close() })
		if err := db.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		b.DB = db
		b.Records = attendance.NewRepository(db.Client)
		b.Checks["postgres"] = db.Client.PingContext
	case "memory":
		slog.Warn("using in-memory store; data is lost on restart")
		b.Records = attendance.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	if cfg.RedisAddr != "" {
		rds := store.NewRedis(cfg.RedisAddr)
		b.closers = append(b.closers, func() { _ = rds.Close() })
		if !rds.Healthy(ctx) {
			slog.Warn("redis not reachable at startup", "addr", cfg.RedisAddr)
		}
		b.Redis = rds
		b.Checks["redis"] = func(ctx context.Context) error { return rds.Client.Ping(ctx).Err() }
	}

	if err := b.openQueue(ctx, cfg, consumer); err != nil {
		return nil, err
	}
	if err := b.openImages(ctx, cfg); err != nil {
		return nil, err
	}
	ok = true
	return b, nil
}

func (b *Backends) openQueue(ctx context.Context, cfg config.App, consumer string) error {
	switch cfg.QueueBackend {
	case "memory":
		b.Queue = queue.NewInMemory(256)
		b.InProcessQueue = true
	case "redis":
		if b.Redis == nil {
			return fmt.Errorf("QUEUE_BACKEND=redis needs REDIS_ADDR")
		}
		b.Queue = queue.NewRedisQueue(b.Redis.Client, "")
	case "nats":
		js, err := queue.NewJetStream(cfg.NATSURL, consumer)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		b.closers = append(b.closers, js.Close)
		if err := js.EnsureStream(ctx); err != nil {
			return fmt.Errorf("nats stream: %w", err)
		}
		b.Queue = js
		b.Checks["nats"] = func(context.Context) error { return js.Ping() }
	default:
		return fmt.Errorf("unknown QUEUE_BACKEND %q", cfg.QueueBackend)
	}
	return nil
}

func (b *Backends) openImages(ctx context.Context, cfg config.App) error {
	var backend imagestore.Backend
	switch cfg.StorageBackend {
	case "minio":
		m, err := imagestore.NewMinIO(cfg.MinIO)
		if err != nil {
			return fmt.Errorf("minio client: %w", err)
		}
		if err := m.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("minio bucket: %w", err)
		}
		backend = m
		b.Checks["minio"] = m.Ping
	case "cloudinary":
		c := cfg.Cloudinary
		if c.CloudName == "" || c.APIKey == "" || c.APISecret == "" {
			return fmt.Errorf("STORAGE_BACKEND=cloudinary needs CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET")
		}
		backend = imagestore.NewCloudinary(cloudinary.New(c.CloudName, c.APIKey, c.APISecret, c.Folder))
	case "memory":
		slog.Warn("using in-memory image storage; photos are lost on restart")
		backend = imagestore.NewMemory()
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	b.Images = imagestore.New(backend, 0)
	return nil
}

// Close releases connections in reverse order of opening.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}
