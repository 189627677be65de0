package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/jonathan/voice-autopilot/internal/calendar"
	"github.com/jonathan/voice-autopilot/internal/config"
	"github.com/jonathan/voice-autopilot/internal/dispatch"
	"github.com/jonathan/voice-autopilot/internal/drafting"
	"github.com/jonathan/voice-autopilot/internal/extraction"
	"github.com/jonathan/voice-autopilot/internal/gate"
	"github.com/jonathan/voice-autopilot/internal/knowledge"
	"github.com/jonathan/voice-autopilot/internal/llm"
	"github.com/jonathan/voice-autopilot/internal/pipeline"
	"github.com/jonathan/voice-autopilot/internal/preview"
	"github.com/jonathan/voice-autopilot/internal/server"
	"github.com/jonathan/voice-autopilot/internal/store"
	"github.com/jonathan/voice-autopilot/internal/transcribe"
)

var (
	serveConfigPath string
	serveAddr       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes REST endpoints for processing conversations, confirming actions, and ingesting knowledge documents.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to JSON config file")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()

	llmClient, err := llm.NewClient(ctx, nil, cfg.GeminiAPIKey)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	defer llmClient.Close()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pg.Close()
		st = pg
		log.Println("Using Postgres run store")
	} else {
		st = store.NewMemoryStore()
		log.Println("Using in-memory run store")
	}

	index, err := knowledge.OpenIndex(cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("failed to open knowledge index: %w", err)
	}
	defer index.Close()

	slots := calendar.NewSlotExtractor(llmClient, loc)
	retriever := knowledge.NewRetriever(index, llmClient)

	orch := pipeline.NewOrchestrator(
		st,
		transcribe.NewDeepgramClient(cfg.DeepgramAPIKey),
		extraction.NewExtractor(llmClient, loc),
		retriever,
		drafting.NewDrafter(llmClient),
		preview.NewPreviewer(),
		slots,
	)
	orch.EmailFrom = cfg.EmailFrom
	orch.EmailFromName = cfg.EmailFromName

	dispatcher := &dispatch.Dispatcher{}
	if cfg.SlackBotToken != "" {
		dispatcher.Slack = dispatch.NewSlackPoster(cfg.SlackBotToken)
	}
	if cfg.SMTPHost != "" {
		dispatcher.Email = dispatch.NewSMTPSender(dispatch.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
			FromName: cfg.EmailFromName,
		})
	}
	if cfg.TicketWebhookURL != "" {
		dispatcher.Ticket = dispatch.NewTicketWebhook(cfg.TicketWebhookURL)
	}
	if cfg.CalendarFormURL != "" {
		dispatcher.Calendar = dispatch.NewBrowserCalendar(cfg.CalendarFormURL)
	}

	srv := server.New(
		server.Config{Addr: cfg.Addr, KnowledgeDir: cfg.KnowledgeDir},
		st,
		orch,
		gate.New(dispatcher, slots),
		knowledge.NewIngester(index, llmClient),
		retriever,
	)

	return srv.Start()
}
