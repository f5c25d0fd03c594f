// poe-engine runs the multi-agent review orchestrator: HTTP API, phase
// orchestration, the hash-chained defense file, and the background
// retention sweep, wired to a single PostgreSQL instance.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/revisoria/poe-engine/pkg/agentrun"
	"github.com/revisoria/poe-engine/pkg/api"
	"github.com/revisoria/poe-engine/pkg/config"
	"github.com/revisoria/poe-engine/pkg/database"
	"github.com/revisoria/poe-engine/pkg/eventstream"
	"github.com/revisoria/poe-engine/pkg/lifecycle"
	"github.com/revisoria/poe-engine/pkg/llmprovider"
	"github.com/revisoria/poe-engine/pkg/notify"
	"github.com/revisoria/poe-engine/pkg/phaseorch"
	"github.com/revisoria/poe-engine/pkg/regulatory"
	"github.com/revisoria/poe-engine/pkg/retention"
	"github.com/revisoria/poe-engine/pkg/scoring"
	"github.com/revisoria/poe-engine/pkg/validate"
	"github.com/revisoria/poe-engine/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	log.Printf("starting %s", version.Full())

	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: could not load %s: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	httpAddr := ":" + getEnv("HTTP_PORT", "8080")
	gin.SetMode(getEnv("GIN_MODE", "release"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(filepath.Join(*configDir, "poe.yaml"))
	if err != nil {
		log.Fatalf("failed to load agent/threshold configuration: %v", err)
	}
	log.Printf("loaded %d agents", len(cfg.Agents))

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("failed to load database config: %v", err)
	}

	dbClient, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer dbClient.Close()
	log.Println("connected to PostgreSQL")

	var natsConn *nats.Conn
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConn, err = nats.Connect(natsURL)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		defer natsConn.Close()
		log.Printf("connected to NATS at %s for cross-process event fan-out", natsURL)
	} else {
		log.Println("NATS_URL not set, running with single-process event fan-out only")
	}

	projectStore := database.NewProjectStore(dbClient.Pool)
	defenseFileStore := database.NewDefenseFileStore(dbClient.Pool)

	schemas := validate.NewRegistry(validate.BuiltinSchemas()...)
	regulatoryProvider := regulatory.NewCachedProvider(1*time.Hour, 10*time.Minute)
	provider := llmprovider.NewDeterministic(`{"decision": "APPROVE", "rationale": "automated deterministic baseline"}`)

	agentTimeout := time.Duration(cfg.Thresholds.AgentTimeoutSeconds) * time.Second
	phaseTimeout := time.Duration(cfg.Thresholds.PhaseTimeoutSeconds) * time.Second

	hub := eventstream.NewHub(eventstream.Config{
		KeepaliveInterval: time.Duration(cfg.Thresholds.StreamKeepaliveSeconds) * time.Second,
		IdleGCThreshold:   time.Duration(cfg.Thresholds.StreamSessionIdleGCSeconds) * time.Second,
		NATSConn:          natsConn,
	})
	if err := hub.Start(ctx); err != nil {
		log.Fatalf("failed to start event hub: %v", err)
	}
	defer hub.Stop()

	runner := &agentrun.Runner{
		Schemas:      schemas,
		Regulatory:   regulatoryProvider,
		Provider:     provider,
		Store:        defenseFileStore,
		AgentTimeout: agentTimeout,
		Publish:      hub.Publish,
	}
	orchestrator := &phaseorch.Orchestrator{Runner: runner, PhaseTimeout: phaseTimeout}

	lifecycleRegistry := lifecycle.NewRegistry(defenseFileStore, cfg.Thresholds.ReviewIterationCap)

	notifier := buildNotifier()

	retentionSvc := retention.NewService(retention.Config{}, dbClient.Pool, nil)
	retentionSvc.Start(ctx)
	defer retentionSvc.Stop()

	server := api.NewServer(
		cfg.Agents,
		scoring.Thresholds{
			AmountHumanReviewThreshold:    cfg.Thresholds.AmountHumanReviewThreshold,
			RiskScoreHumanReviewThreshold: cfg.Thresholds.RiskScoreHumanReviewThreshold,
		},
		projectStore,
		defenseFileStore,
		orchestrator,
		lifecycleRegistry,
		hub,
		notifier,
	)

	httpServer := &http.Server{Addr: httpAddr, Handler: server.Handler()}

	go func() {
		log.Printf("HTTP server listening on %s", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received, draining in-flight requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown did not complete cleanly", "error", err)
	}

	slog.Info("poe-engine shutdown complete")
}

// buildNotifier wires A5's Slack escalation notifier when credentials are
// present in the environment, or a no-op otherwise.
func buildNotifier() notify.Notifier {
	token := os.Getenv("SLACK_BOT_TOKEN")
	channel := os.Getenv("SLACK_CHANNEL_ID")
	if token == "" || channel == "" {
		log.Println("SLACK_BOT_TOKEN/SLACK_CHANNEL_ID not set, human-review escalations will not be posted")
		return notify.NoopNotifier{}
	}
	return notify.NewSlackNotifier(token, channel, 10*time.Second)
}
