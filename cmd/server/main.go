package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/ticketgate/onsale/internal/admission"
	"github.com/ticketgate/onsale/internal/booking"
	"github.com/ticketgate/onsale/internal/broker"
	"github.com/ticketgate/onsale/internal/cache"
	"github.com/ticketgate/onsale/internal/config"
	"github.com/ticketgate/onsale/internal/database"
	"github.com/ticketgate/onsale/internal/handler"
	"github.com/ticketgate/onsale/internal/lock"
	"github.com/ticketgate/onsale/internal/realtime"
	"github.com/ticketgate/onsale/internal/repository"
	"github.com/ticketgate/onsale/internal/router"
	"github.com/ticketgate/onsale/internal/store"
	"github.com/ticketgate/onsale/internal/worker"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	queueCfg := config.LoadQueueConfig()
	holdCfg := config.LoadHoldConfig()
	rtCfg := config.LoadRealtimeConfig()
	rlCfg := config.LoadRateLimitConfig()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		// Admission, locks, sessions and fanout all live in Redis.
		log.Fatal("redis: connection failed")
	}
	kv := store.NewRedis(rdb)

	events := repository.NewEventRepo(db)
	seats := repository.NewSeatRepo(db)
	tickets := repository.NewTicketTypeRepo(db)
	reservations := repository.NewReservationRepo(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Thresholds are read per event through a small TTL cache so the
	// hot admission path does not hit the events table on every check.
	thresholds := cache.New[int64](30*time.Second, 4096)
	thresholdOf := func(ctx context.Context, eventID uint64) (int64, error) {
		key := strconv.FormatUint(eventID, 10)
		if v, ok := thresholds.Get(key); ok {
			return v, nil
		}
		event, err := events.GetByID(ctx, eventID)
		if err != nil {
			return 0, err
		}
		thresholds.Set(key, event.CapacityThreshold)
		return event.CapacityThreshold, nil
	}

	locker := lock.New(kv, holdCfg.LockTTL)
	queue := admission.NewQueue(kv, queueCfg, thresholdOf)

	sessions := realtime.NewSessionStore(kv, rtCfg.SessionTTL)
	hub := realtime.NewHub(kv, sessions)
	go func() {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("realtime: hub stopped: %v", err)
		}
	}()

	publisher := broker.NewPublisher()
	manager := booking.NewManager(db, events, seats, tickets, reservations,
		locker, queue, hub, publisher, holdCfg)

	processor := admission.NewProcessor(kv, queue, locker, hub, queueCfg)
	go (&worker.Runner{
		Name:        "queue-processor",
		Interval:    queueCfg.ProcessInterval,
		MaxFailures: queueCfg.MaxTickFailures,
		Cooldown:    queueCfg.BreakerCooldown,
		Task:        processor.Tick,
	}).Start(ctx)

	reaper := booking.NewReaper(manager, queue, hub, publisher)
	go (&worker.Runner{
		Name:        "reservation-reaper",
		Interval:    holdCfg.ReaperInterval,
		MaxFailures: queueCfg.MaxTickFailures,
		Cooldown:    queueCfg.BreakerCooldown,
		Task:        reaper.Tick,
	}).Start(ctx)

	go func() {
		if err := broker.StartAuditConsumer(); err != nil {
			log.Printf("audit-consumer: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	router.Register(e, router.Handlers{
		Events:       handler.NewEventHandler(events, seats, tickets),
		Queue:        handler.NewQueueHandler(queue, events),
		Reservations: handler.NewReservationHandler(manager, reservations),
		WS:           handler.NewWSHandler(hub, queue, cfg.JWTSecret),
	}, cfg.JWTSecret, rlCfg, rdb)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil && ctx.Err() == nil {
		log.Fatal(err)
	}
}
