package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"shiftledger/backend/internal/cache"
	"shiftledger/backend/internal/config"
	"shiftledger/backend/internal/events"
	"shiftledger/backend/internal/httpapi"
	"shiftledger/backend/internal/job"
	"shiftledger/backend/internal/ledger"
	"shiftledger/backend/internal/lock"
	"shiftledger/backend/internal/report"
	"shiftledger/backend/internal/service"
	"shiftledger/backend/internal/store"
	"shiftledger/backend/internal/store/memory"
	pgstore "shiftledger/backend/internal/store/postgres"
)

const outboxCapacity = 4096

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("postgres migration failed: %v", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	var locker lock.Locker = lock.NewLocal()
	reportCache := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			// Without Redis the locks only cover this instance.
			log.Printf("redis unavailable (%v), using local locks and noop cache", err)
			_ = redisCache.Close()
		} else {
			reportCache = redisCache
			locker = lock.NewRedis(redisCache.Client(), 0)
			closers = append(closers, redisCache.Close)
			log.Println("locks: redis, cache: redis")
		}
	} else {
		log.Println("locks: local, cache: noop")
	}

	var sink events.Sink = events.LogSink{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.WorkerID)
		if err != nil {
			log.Printf("kafka unavailable (%v), logging ledger events instead", err)
		} else {
			sink = kafkaSink
			closers = append(closers, kafkaSink.Close)
			log.Printf("events: kafka topic=%s", cfg.KafkaTopic)
		}
	} else {
		log.Println("events: log")
	}

	engine := ledger.NewEngine(cfg.LedgerToleranceCents)
	outbox := events.NewOutbox(outboxCapacity)
	svc := service.New(repo, service.Options{
		Engine:   engine,
		Locker:   locker,
		Events:   outbox,
		LockWait: cfg.LockTimeout(),
	})
	reports := report.NewService(repo, engine, report.Options{
		Cache:    reportCache,
		CacheTTL: cfg.ReportCacheTTL(),
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.ManagerPIN, repo)
	api := httpapi.New(svc, reports, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	sender := job.NewOutboxSender(outbox, sink, cfg.OutboxInterval())

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		log.Printf("shift ledger backend %s listening on %s", cfg.WorkerID, cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		sender.Start(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		return nil
	})

	runErr := g.Wait()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}
	if outbox.Len() > 0 || outbox.Dropped() > 0 {
		log.Printf("[outbox] WARN: %d events undelivered, %d dropped", outbox.Len(), outbox.Dropped())
	}
	if runErr != nil {
		log.Fatalf("%v", runErr)
	}
	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	if cfg.LedgerToleranceCents < 0 {
		return fmt.Errorf("LEDGER_TOLERANCE_CENTS must not be negative")
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"222222": true, "333333": true, "444444": true, "555555": true,
		"666666": true, "777777": true, "888888": true, "999999": true,
		"121212": true, "112233": true, "123123": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
