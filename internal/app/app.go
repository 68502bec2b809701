package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/avstrong/staytrust/internal/audit"
	"github.com/avstrong/staytrust/internal/booking"
	"github.com/avstrong/staytrust/internal/config"
	"github.com/avstrong/staytrust/internal/dispute"
	"github.com/avstrong/staytrust/internal/idgen/uuidgen"
	"github.com/avstrong/staytrust/internal/lock"
	"github.com/avstrong/staytrust/internal/lock/redislock"
	"github.com/avstrong/staytrust/internal/logger"
	"github.com/avstrong/staytrust/internal/migration"
	"github.com/avstrong/staytrust/internal/notify"
	"github.com/avstrong/staytrust/internal/obs"
	"github.com/avstrong/staytrust/internal/pricing"
	"github.com/avstrong/staytrust/internal/review"
	"github.com/avstrong/staytrust/internal/scheduler"
	"github.com/avstrong/staytrust/internal/storage"
	"github.com/avstrong/staytrust/internal/storage/memory"
	"github.com/avstrong/staytrust/internal/storage/postgres"
	"github.com/avstrong/staytrust/internal/transport/web"
	"github.com/avstrong/staytrust/internal/trust"
	"github.com/avstrong/staytrust/internal/verification"
)

const postgresMaxConns = 20

// store is everything the core asks of a storage driver.
type store interface {
	storage.Transactor
	SaveListings(ctx context.Context, listings []*booking.Listing) error
	GetListing(ctx context.Context, id string) (*booking.Listing, error)
	SaveBooking(ctx context.Context, b *booking.Booking) error
	GetBooking(ctx context.Context, id string) (*booking.Booking, error)
	GetBookingByIdempotencyKey(ctx context.Context) (*booking.Booking, error)
	ListBookingsByStatus(ctx context.Context, statuses ...booking.Status) ([]*booking.Booking, error)
	SaveProfile(ctx context.Context, p *trust.Profile) error
	GetProfile(ctx context.Context, participantID string) (*trust.Profile, error)
	AppendAuditEntry(ctx context.Context, entry audit.Entry) error
	QueryAuditEntries(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
}

type idGenerator interface {
	GetID(ctx context.Context) (string, error)
}

//nolint:funlen,cyclop
func Run(l *logger.Logger, cfg config.Config) error {
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGHUP,
	)
	defer cancel()

	tp, shutdownTracer, err := obs.InitTracer(ctx, obs.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}

	//nolint:contextcheck
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		if err := shutdownTracer(ctx); err != nil {
			l.LogErrorf("Failed to flush traces: %v", err.Error())
		}
	}()

	db, idGen, closeDB, err := openStorage(ctx, l, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeDB()

	if cfg.SeedDemo {
		if err := migration.Up(ctx, l, db, time.Now().UTC()); err != nil {
			return fmt.Errorf("up demo migration: %w", err)
		}
	}

	locks, closeLocks, err := openLocks(ctx, l, cfg.Lock)
	if err != nil {
		return err
	}
	defer closeLocks()

	publisher, err := openPublisher(l, cfg.Events)
	if err != nil {
		return err
	}

	defer func() {
		if err := publisher.Close(); err != nil {
			l.LogErrorf("Failed to close event publisher: %v", err.Error())
		}
	}()

	policy, err := pricing.NewFixedFee(cfg.Pricing.ServiceFee)
	if err != nil {
		return fmt.Errorf("init pricing: %w", err)
	}

	stamper := audit.NewStamper(nil)
	registry := verification.NewRegistry()

	engine := trust.NewEngine(trust.Config{
		L:        l.With("component", "trust"),
		Storage:  db,
		Locks:    locks,
		Stamper:  stamper,
		Identity: registry,
		Phone:    registry,
		Vouch:    registry,
		Now:      nil,
	})

	ledger := booking.New(booking.Config{
		L:           l.With("component", "booking"),
		Storage:     db,
		IDGenerator: idGen,
		Profiles:    engine,
		Pricing:     policy,
		Locks:       locks,
		Stamper:     stamper,
		Publisher:   publisher,
		Tracer:      tp.Tracer("staytrust/booking"),
		Now:         nil,
	})

	sched := scheduler.New(scheduler.Config{
		L:        l.With("component", "scheduler"),
		Ledger:   ledger,
		Interval: cfg.Scheduler.Interval,
		Now:      nil,
	})

	go func() {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.LogErrorf("Scheduler stopped: %v", err.Error())
		}
	}()

	srv, err := web.New(ctx, web.Conf{
		L:                 l.With("component", "web"),
		ServerLogger:      slog.NewLogLogger(l.Slog().Handler(), slog.LevelError),
		Addr:              cfg.HTTP.Addr,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		LivenessEndpoint:  "/liveness",
		JWTSecret:         []byte(cfg.Auth.JWTSecret),
		Tracer:            tp.Tracer("staytrust/web"),
	}, web.Services{
		Bookings:     ledger,
		Disputes:     dispute.NewService(dispute.Config{L: l.With("component", "dispute"), Ledger: ledger, Offenses: engine}),
		Reviews:      review.NewCoordinator(review.Config{L: l.With("component", "review"), Ledger: ledger, Trust: engine}),
		Trust:        engine,
		Verification: registry,
		Audit:        audit.NewLog(db),
	})
	if err != nil {
		return fmt.Errorf("init http server: %w", err)
	}

	//nolint:contextcheck
	go func() {
		<-ctx.Done()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		if err := srv.Srv().Shutdown(ctx); err != nil {
			l.LogErrorf("Failed to stop http server: %v", err.Error())
		}
	}()

	l.LogInfo("Application is running on %v (storage %s, locks %s, events %s)...",
		cfg.HTTP.Addr, cfg.Storage.Driver, cfg.Lock.Driver, cfg.Events.Driver)

	if err := srv.Srv().ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		l.LogErrorf("Failed to run http server: %v", err.Error())

		cancel()
	}

	l.LogInfo("Application stopped gracefully")

	return nil
}

func openStorage(ctx context.Context, l *logger.Logger, conf config.Storage) (store, idGenerator, func(), error) {
	switch conf.Driver {
	case config.StoragePostgres:
		conn, err := postgres.Connect(ctx, conf.PostgresDSN, postgresMaxConns)
		if err != nil {
			return nil, nil, nil, err
		}

		db := postgres.New(postgres.Config{L: l, DB: conn})
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()

			return nil, nil, nil, err
		}

		return db, uuidgen.New(), func() {
			if err := db.Close(); err != nil {
				l.LogErrorf("Failed to close postgres: %v", err.Error())
			}
		}, nil
	default:
		return memory.New(memory.Config{L: l}), uuidgen.New(), func() {}, nil
	}
}

func openLocks(ctx context.Context, l *logger.Logger, conf config.Lock) (lock.Locker, func(), error) {
	if conf.Driver != config.LockRedis {
		return lock.NewKeyed(conf.MaxWait), func() {}, nil
	}

	client, err := redislock.Connect(conf.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	//nolint:exhaustruct
	locker := redislock.New(client, redislock.Config{L: l, TTL: conf.TTL, MaxWait: conf.MaxWait})

	return locker, func() {
		if err := client.Close(); err != nil {
			l.LogErrorf("Failed to close redis: %v", err.Error())
		}
	}, nil
}

func openPublisher(l *logger.Logger, conf config.Events) (notify.Publisher, error) {
	switch conf.Driver {
	case config.EventsRabbitMQ:
		p, err := notify.NewRabbitPublisher(conf.RabbitURL, conf.Exchange)
		if err != nil {
			return nil, fmt.Errorf("init rabbitmq publisher: %w", err)
		}

		return p, nil
	case config.EventsKafka:
		p, err := notify.NewKafkaPublisher(conf.KafkaBrokers, conf.KafkaTopic)
		if err != nil {
			return nil, fmt.Errorf("init kafka publisher: %w", err)
		}

		return p, nil
	default:
		return notify.NewLogPublisher(l.With("component", "events")), nil
	}
}
