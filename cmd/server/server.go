package main

import (
	"context"
	"flag"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"intern-exchange/internal/config"
	"intern-exchange/internal/coordinator"
	"intern-exchange/internal/events"
	"intern-exchange/internal/fees"
	"intern-exchange/internal/matching"
	"intern-exchange/internal/net"
	"intern-exchange/internal/phase"
	"intern-exchange/internal/pipeline"
	"intern-exchange/internal/positions"
	"intern-exchange/internal/ratelimit"
	"intern-exchange/internal/validation"
	"intern-exchange/internal/venue"
)

const (
	intakeQueueSize    = 1024
	validatedQueueSize = 1024
	matchedQueueSize   = 1024
	cancelQueueSize    = 256
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to exchange configuration")
	address := flag.String("address", "0.0.0.0", "listen address")
	port := flag.Int("port", 9001, "listen port")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load configuration")
	}

	now := time.Now

	phases, err := phase.NewManager(cfg.Location, cfg.Windows, cfg.PhaseStates)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to build phase manager")
	}

	posBook := positions.NewBook()
	feeSvc := fees.NewService(cfg.RoleFees)
	validator := validation.NewValidator()
	for role, chain := range cfg.RoleConstraints {
		validator.LoadConstraints(role, chain)
	}
	limiter := ratelimit.New()
	publisher := events.NewPublisher()
	coord := coordinator.New(coordinator.Config{
		DefaultTimeout:  cfg.Coordinator.DefaultTimeout,
		MaxPending:      cfg.Coordinator.MaxPending,
		CleanupInterval: cfg.Coordinator.CleanupInterval,
		RequestIDPrefix: cfg.Coordinator.RequestIDPrefix,
	})
	defer coord.Shutdown()

	intake := make(chan pipeline.IntakeTask, intakeQueueSize)
	validated := make(chan pipeline.ValidatedTask, validatedQueueSize)
	validatedCancels := make(chan pipeline.ValidatedCancel, cancelQueueSize)
	matched := make(chan pipeline.MatchedTask, matchedQueueSize)
	cancelResults := make(chan pipeline.CancelResultTask, cancelQueueSize)

	batch := matching.NewBatch(rand.New(rand.NewSource(time.Now().UnixNano())))

	proc := &pipeline.TradeProcessor{
		Matched:     matched,
		CancelIn:    cancelResults,
		Positions:   posBook,
		Fees:        feeSvc,
		Coordinator: coord,
		Publisher:   publisher,
		RoleOf:      cfg.RoleOf,
	}

	v := venue.New(cfg.Instruments, phases, batch, proc.ProcessAuctionClear, proc.ProcessMassCancel)

	validationWorker := &pipeline.ValidationWorker{
		Intake:      intake,
		Validated:   validated,
		Cancels:     validatedCancels,
		Validator:   validator,
		RateLimiter: limiter,
		Positions:   posBook,
		Coordinator: coord,
		Now:         now,
	}
	matchingWorker := &pipeline.MatchingWorker{
		Validated: validated,
		Cancels:   validatedCancels,
		Matched:   matched,
		CancelOut: cancelResults,
		Venue:     v,
		Now:       now,
	}

	var t tomb.Tomb
	t.Go(func() error { return validationWorker.Run(&t) })
	t.Go(func() error { return matchingWorker.Run(&t) })
	t.Go(func() error { return proc.Run(&t) })

	srv := net.New(*address, *port, net.Deps{
		Intake:      intake,
		Coordinator: coord,
		Positions:   posBook,
		Publisher:   publisher,
		Venue:       v,
		RoleOf:      cfg.RoleOf,
		WaitTimeout: cfg.Coordinator.DefaultTimeout,
	})

	go srv.Run(ctx)

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
	intake <- pipeline.IntakeTask{Shutdown: true}
	t.Kill(nil)
	_ = t.Wait()
}
