package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/codeteki/outreach/internal/agent"
	"github.com/codeteki/outreach/internal/brands"
	"github.com/codeteki/outreach/internal/engine"
	"github.com/codeteki/outreach/internal/events"
	"github.com/codeteki/outreach/internal/mailer"
	"github.com/codeteki/outreach/internal/stores/crm"
	"github.com/codeteki/outreach/pkg/schedule"
	"github.com/codeteki/outreach/pkg/utils"
)

// Start the CRM automation worker: cron jobs plus the deal-won consumer
func main() {
	// Find env file
	envFile := ".env"
	if os.Getenv("ENV_FILE") != "" {
		envFile = os.Getenv("ENV_FILE")
	}

	// Load global config
	cfg := utils.NewConfigFromEnv(envFile)

	// Initialize database connection
	store, err := crm.NewStore(cfg.Get("DATABASE_URL"))
	if err != nil {
		log.Fatalf("[WORKER-MAIN]: Failed to initialize CRM store: %v", err)
	}

	// Seed pipelines on first boot
	if seedFile := cfg.Get("CRM_PIPELINE_SEED_FILE"); seedFile != "" {
		created, err := crm.SeedPipelinesFromFile(store, seedFile)
		if err != nil {
			log.Fatalf("[WORKER-MAIN]: Failed to seed pipelines: %v", err)
		}
		if created > 0 {
			log.Printf("[WORKER-MAIN]: Seeded %d pipelines", created)
		}
	}

	// Load brand registry
	registry, err := brands.Load(cfg.GetWithDefault("CRM_BRANDS_FILE", "brands.yaml"))
	if err != nil {
		log.Fatalf("[WORKER-MAIN]: Failed to load brand registry: %v", err)
	}

	// Initialize AI agent and daily reviewer
	aiAgent, err := agent.New(cfg, store)
	if err != nil {
		log.Fatalf("[WORKER-MAIN]: Failed to initialize AI agent: %v", err)
	}
	reviewer := agent.NewReviewAgent(cfg.GetWithDefault("CRM_AI_MODEL", "gpt-4o-mini"))

	// Inbox polling is optional; without a token the reply job no-ops
	var inbox mailer.Inbox
	if token := cfg.Get("ZOHO_AUTH_TOKEN"); token != "" {
		inbox = mailer.NewZohoInbox(cfg.GetWithDefault("ZOHO_MAIL_BASE_URL", "https://mail.zoho.com"), token)
	} else {
		log.Println("[WORKER-MAIN]: ZOHO_AUTH_TOKEN not set, inbox polling disabled")
	}

	// Connect the event bus
	var publisher events.Publisher = events.NewMemoryPublisher()
	var rabbit *events.RabbitMQ
	if cfg.Has("RABBITMQ_HOST") {
		rabbit, err = events.NewRabbitMQ(
			cfg.Get("RABBITMQ_USER"),
			cfg.Get("RABBITMQ_PASSWORD"),
			cfg.Get("RABBITMQ_HOST"),
			cfg.GetWithDefault("RABBITMQ_PORT", "5672"),
		)
		if err != nil {
			log.Fatalf("[WORKER-MAIN]: Failed to connect to RabbitMQ: %v", err)
		}
		defer rabbit.Close()
		publisher = events.NewRabbitPublisher(rabbit)
	} else {
		log.Println("[WORKER-MAIN]: RABBITMQ_HOST not set, events stay in-process")
	}

	// Assemble the engine
	eng := engine.New(engine.Options{
		Store:     store,
		AI:        aiAgent,
		Reviewer:  reviewer,
		Sender:    mailer.NewSMTPSender(registry),
		Inbox:     inbox,
		Brands:    registry,
		Publisher: publisher,
		Config:    engineConfig(cfg),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the deal-won consumer when a broker is connected
	if rabbit != nil {
		consumer := events.NewConsumer(rabbit, events.NewNurtureHandler(store))
		if err := consumer.Start(ctx); err != nil {
			log.Fatalf("[WORKER-MAIN]: Failed to start event consumer: %v", err)
		}
	}

	// Register the periodic jobs
	manager := schedule.NewManager()
	err = manager.LoadJobs([]*schedule.Job{
		{Key: "process-pending-deals", Spec: "0 * * * *", Run: asJob(eng.ProcessPendingDeals)},
		{Key: "send-scheduled-emails", Spec: "*/15 * * * *", Run: asJob(eng.SendScheduledEmails)},
		{Key: "check-email-replies", Spec: "*/30 * * * *", Run: asJob(eng.CheckEmailReplies)},
		{Key: "daily-ai-review", Spec: "0 7 * * *", Run: asJob(eng.DailyAIReview)},
	})
	if err != nil {
		log.Fatalf("[WORKER-MAIN]: Failed to load jobs: %v", err)
	}

	// Log job results until shutdown
	go func() {
		for result := range manager.ResultChannel() {
			log.Printf("[WORKER-MAIN]: Job '%s' finished: %d processed, %d skipped, %d errors",
				result.Key, result.Processed, result.Skipped, result.Errors)
		}
	}()

	log.Println("[WORKER-MAIN]: Worker started")

	// Shut down on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[WORKER-MAIN]: Shutting down")
	cancel()
	manager.Stop()
}

// asJob adapts an engine batch operation to the schedule manager's job shape
func asJob(run func(ctx context.Context) (*engine.Report, error)) schedule.JobFunc {
	return func(ctx context.Context) (*schedule.Result, error) {
		report, err := run(ctx)
		if err != nil {
			return nil, err
		}
		return &schedule.Result{
			Processed: report.Processed,
			Skipped:   report.Skipped,
			Errors:    report.Errors,
			Detail:    report.Detail,
		}, nil
	}
}

// engineConfig reads the engine tunables from the environment
func engineConfig(cfg *utils.Config) engine.Config {
	c := engine.DefaultConfig()
	c.BatchSize = cfg.GetIntWithDefault("CRM_BATCH_SIZE", c.BatchSize)
	c.SendBatchSize = cfg.GetIntWithDefault("CRM_SEND_BATCH_SIZE", c.SendBatchSize)
	c.BurnoutThreshold = cfg.GetIntWithDefault("CRM_BURNOUT_THRESHOLD", c.BurnoutThreshold)
	c.OfficeStartHour = cfg.GetIntWithDefault("CRM_OFFICE_START_HOUR", c.OfficeStartHour)
	c.OfficeEndHour = cfg.GetIntWithDefault("CRM_OFFICE_END_HOUR", c.OfficeEndHour)
	c.ReplyFetchLimit = cfg.GetIntWithDefault("CRM_REPLY_FETCH_LIMIT", c.ReplyFetchLimit)
	c.TrackingBaseURL = cfg.GetWithDefault("CRM_TRACKING_BASE_URL", c.TrackingBaseURL)
	return c
}
