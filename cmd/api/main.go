package main

import (
	"log"
	"os"

	"github.com/codeteki/outreach/internal/agent"
	"github.com/codeteki/outreach/internal/api"
	"github.com/codeteki/outreach/internal/brands"
	"github.com/codeteki/outreach/internal/engine"
	"github.com/codeteki/outreach/internal/events"
	"github.com/codeteki/outreach/internal/mailer"
	"github.com/codeteki/outreach/internal/stores/crm"
	"github.com/codeteki/outreach/pkg/utils"
)

// Start the API server
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
		log.Fatalf("[API-MAIN]: Failed to initialize CRM store: %v", err)
	}

	// Load brand registry
	registry, err := brands.Load(cfg.GetWithDefault("CRM_BRANDS_FILE", "brands.yaml"))
	if err != nil {
		log.Fatalf("[API-MAIN]: Failed to load brand registry: %v", err)
	}

	// Initialize AI agent
	aiAgent, err := agent.New(cfg, store)
	if err != nil {
		log.Fatalf("[API-MAIN]: Failed to initialize AI agent: %v", err)
	}

	// Connect the event bus, falling back to in-process events when no
	// broker is configured
	var publisher events.Publisher = events.NewMemoryPublisher()
	if cfg.Has("RABBITMQ_HOST") {
		rabbit, err := events.NewRabbitMQ(
			cfg.Get("RABBITMQ_USER"),
			cfg.Get("RABBITMQ_PASSWORD"),
			cfg.Get("RABBITMQ_HOST"),
			cfg.GetWithDefault("RABBITMQ_PORT", "5672"),
		)
		if err != nil {
			log.Fatalf("[API-MAIN]: Failed to connect to RabbitMQ: %v", err)
		}
		defer rabbit.Close()
		publisher = events.NewRabbitPublisher(rabbit)
	} else {
		log.Println("[API-MAIN]: RABBITMQ_HOST not set, events stay in-process")
	}

	// Assemble the engine for the API's manual moves and webhooks
	eng := engine.New(engine.Options{
		Store:     store,
		AI:        aiAgent,
		Sender:    mailer.NewSMTPSender(registry),
		Brands:    registry,
		Publisher: publisher,
		Config:    engineConfig(cfg),
	})

	// Start
	api.Start(cfg, store, eng)
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
