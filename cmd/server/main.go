// cmd/server/main.go
package main

import (
    "context"
    "net/http"
    "os"

    "github.com/go-chi/chi/v5"
    "github.com/joho/godotenv"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/rs/zerolog"

    "github.com/quillsend/quillsend-backend/internal/config"
    "github.com/quillsend/quillsend-backend/internal/controller"
    "github.com/quillsend/quillsend-backend/internal/db"
    "github.com/quillsend/quillsend-backend/internal/handler"
    "github.com/quillsend/quillsend-backend/internal/kv"
    "github.com/quillsend/quillsend-backend/internal/mailer"
    "github.com/quillsend/quillsend-backend/internal/plan"
    "github.com/quillsend/quillsend-backend/internal/queue"
    "github.com/quillsend/quillsend-backend/internal/repository"
    "github.com/quillsend/quillsend-backend/internal/service"
)

func main() {
    logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

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
    } else {
        logger.Warn().Msg("AMQP_URL not set, outcome events disabled")
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
    quotaLedger := repository.NewQuotaLedger(store)
    historyRecorder := &repository.HistoryRecorder{DB: conn}
    profileRepo := &repository.ProfileRepository{Store: store}

    executor := &service.CampaignExecutor{
        CampaignStore: campaignStore,
        Quota:         quotaLedger,
        History:       historyRecorder,
        Profiles:      profileRepo,
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

    campaignService := &service.CampaignService{
        CampaignStore: campaignStore,
        Quota:         quotaLedger,
        Profiles:      profileRepo,
        Plans:         plans,
        Trigger:       scheduler,
        Executor:      executor,
        Defaults:      cfg.Sender,
        DefaultPlan:   cfg.DefaultPlan,
        Log:           logger,
    }

    if err := scheduler.EnsureRecurringTrigger(); err != nil {
        logger.Fatal().Err(err).Msg("failed to register sweep trigger")
    }
    defer scheduler.RemoveRecurringTrigger()

    campaignController := &controller.CampaignController{CampaignService: campaignService}
    historyHandler := &handler.HistoryHandler{
        History:  historyRecorder,
        Quota:    quotaLedger,
        Profiles: profileRepo,
        Plans:    plans,
    }

    r := chi.NewRouter()

    // Campaign routes
    r.Post("/campaigns/schedule", campaignController.ScheduleCampaign)
    r.Post("/campaigns/send", campaignController.SendCampaign)
    r.Post("/campaigns/test", campaignController.SendTestCampaign)
    r.Get("/campaigns/pending", campaignController.ListPending)
    r.Put("/campaigns/{id}/reschedule", campaignController.Reschedule)
    r.Delete("/campaigns/{id}", campaignController.Cancel)

    // Read side
    r.Get("/history", historyHandler.GetHistory)
    r.Get("/history/stats", historyHandler.GetHistoryStats)
    r.Delete("/history", historyHandler.PurgeHistory)
    r.Delete("/history/test", historyHandler.PurgeTestHistory)
    r.Get("/quota", historyHandler.GetQuota)
    r.Get("/profile", historyHandler.GetProfile)
    r.Put("/profile", historyHandler.PutProfile)

    r.Handle("/metrics", promhttp.Handler())
    r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
        w.WriteHeader(http.StatusOK)
        w.Write([]byte("ok"))
    })

    logger.Info().Str("addr", cfg.HTTPAddr).Msg("🚀 server running")
    if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
        logger.Fatal().Err(err).Msg("server stopped")
    }
}
