package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bookwell/bookwell/internal/booking"
	"github.com/bookwell/bookwell/internal/handlers"
	"github.com/bookwell/bookwell/internal/notify"
	"github.com/bookwell/bookwell/internal/outbox"
	"github.com/bookwell/bookwell/internal/reminder"
	"github.com/bookwell/bookwell/internal/storage"
	"github.com/bookwell/bookwell/internal/token"
	"github.com/bookwell/bookwell/libs/config"
	"github.com/bookwell/bookwell/libs/db"
	"github.com/bookwell/bookwell/libs/httpx"
	"github.com/bookwell/bookwell/libs/kafkax"
	otelx "github.com/bookwell/bookwell/libs/otel"
	"github.com/bookwell/bookwell/libs/runtime"
)

func main() {
	config.LoadDotenv()

	service := config.String("SERVICE_NAME", "bookwell")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if err := storage.Migrate(ctx, pool); err != nil {
		logger.Error("migrations failed", "err", err)
		panic(err)
	}

	tokenSecret, err := config.RequiredString("BOOKING_TOKEN_SECRET")
	if err != nil {
		panic(err)
	}
	minter := token.NewMinter(tokenSecret, config.Duration("BOOKING_TOKEN_TTL", 0))

	outboxRepo := outbox.NewRepository(pool)
	eventTypeRepo := storage.NewEventTypeRepository(pool)
	scheduleRepo := storage.NewScheduleRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool, outboxRepo)

	svc := booking.NewService(eventTypeRepo, scheduleRepo, bookingRepo, minter, logger)

	if smtpHost := config.String("SMTP_HOST", ""); smtpHost != "" {
		sender := notify.NewSMTPSender(smtpHost, config.String("SMTP_PORT", "1025"), config.String("SMTP_FROM", ""))
		svc.SetNotifier(notify.NewEmailNotifier(sender, logger))
	}

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	reminderWorker := reminder.NewWorker(bookingRepo, outboxRepo, logger, reminder.WorkerConfig{
		Interval:  config.Duration("REMINDER_SWEEP_INTERVAL", time.Minute),
		Lead:      config.Duration("REMINDER_LEAD", 24*time.Hour),
		BatchSize: config.Int("REMINDER_BATCH_SIZE", 100),
	})
	go reminderWorker.Run(ctx)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if kafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)})
	}

	var rdb *redis.Client
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: redisAddr})
		defer rdb.Close()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handlers.NewBookingHandler(svc, logger).Register(mux)
	handlers.NewAdminHandler(svc, eventTypeRepo, scheduleRepo, bookingRepo, config.String("ADMIN_KEY_HASH", ""), logger).Register(mux)

	rateLimit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var limit httpx.Middleware
	if rdb != nil {
		limit = httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, service).Middleware(logger, true)
	} else {
		limit = httpx.NewRateLimiter(rateLimit, time.Minute).Middleware()
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", "*"), ",")}),
		httpx.WithBodyLimit(1<<20),
		limit,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, service)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
