// cmd/sweeper/main.go
//
// Standalone sweep worker for deployments that separate the API from
// delivery. Runs only the periodic due-campaign check.
package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"

    "github.com/joho/godotenv"
    "github.com/rs/zerolog"

    "github.com/quillsend/quillsend-backend/internal/config"
    "github.com/quillsend/quillsend-backend/internal/db"
    "github.com/quillsend/quillsend-backend/internal/kv"
    "github.com/quillsend/quillsend-backend/internal/mailer"
    "github.com/quillsend/quillsend-backend/internal/plan"
    "github.com/quillsend/quillsend-backend/internal/queue"
    "github.com/quillsend/quillsend-backend/internal/repository"
    "github.com/quillsend/quillsend-backend/internal/service"
)

func main() {
    logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "sweeper").Logger()

    if err := godotenv.Load(); err != nil {
        logger.Warn().Msg("no .env file found, relying on OS environment variables")
    }
    cfg := config.Load()
    ctx := context.Background()

    conn, err := db.Open(cfg.DatabaseURL)
    if err != nil {
        logger.Fatal().Err(err).Msg("postgres connection failed")
    }
    defer conn.Close()

    store := kv.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
    if err := store.Ping(ctx); err != nil {
        logger.Fatal().Err(err).Msg("redis connection failed")
    }
    defer store.Close()

    var events queue.Publisher = queue.NoopPublisher{}
    if cfg.AMQPURL != "" {
        pub, err := queue.NewAMQPPublisher(cfg.AMQPURL)
        if err != nil {
            logger.Fatal().Err(err).Msg("rabbitmq connection failed")
        }
        defer pub.Close()
        events = pub
    }

    var sender mailer.Sender
    if cfg.AWSRegion != "" {
        sesSender, err := mailer.NewSESSender(ctx, cfg.AWSRegion)
        if err != nil {
            logger.Fatal().Err(err).Msg("SES client init failed")
        }
        sender = sesSender
    } else {
        logger.Warn().Msg("AWS_REGION not set, using log-only mail sender")
        sender = &mailer.LogSender{Log: logger}
    }

    plans := plan.NewCatalog()
    campaignStore := &repository.CampaignStore{Store: store}

    executor := &service.CampaignExecutor{
        CampaignStore: campaignStore,
        Quota:         repository.NewQuotaLedger(store),
        History:       &repository.HistoryRecorder{DB: conn},
        Profiles:      &repository.ProfileRepository{Store: store},
        Plans:         plans,
        Sender:        sender,
        Events:        events,
        DefaultPlan:   cfg.DefaultPlan,
        BatchSize:     cfg.BatchSize,
        BatchDelay:    cfg.BatchDelay,
        Log:           logger,
    }

    scheduler := &service.Scheduler{
        CampaignStore: campaignStore,
        Executor:      executor,
        SweepSpec:     "@every " + cfg.SweepInterval.String(),
        Log:           logger,
    }

    // catch up immediately, then let the trigger take over
    if err := scheduler.RunDueCampaigns(ctx); err != nil {
        logger.Error().Err(err).Msg("initial sweep failed")
    }
    if err := scheduler.EnsureRecurringTrigger(); err != nil {
        logger.Fatal().Err(err).Msg("failed to register sweep trigger")
    }

    logger.Info().Msg("sweeper running, waiting for due campaigns...")

    stop := make(chan os.Signal, 1)
    signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
    <-stop

    scheduler.RemoveRecurringTrigger()
    logger.Info().Msg("sweeper stopped")
}
