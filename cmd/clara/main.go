package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mateonavarro/clara/internal/config"
	"github.com/mateonavarro/clara/internal/dialog"
	"github.com/mateonavarro/clara/internal/history"
	"github.com/mateonavarro/clara/internal/httpapi"
	"github.com/mateonavarro/clara/internal/observability"
	"github.com/mateonavarro/clara/internal/permission"
	"github.com/mateonavarro/clara/internal/prefs"
	"github.com/mateonavarro/clara/internal/session"
	"github.com/mateonavarro/clara/internal/voice"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := history.NewStore(ctx, cfg.DatabaseURL, cfg.HistoryLimit)
	if err != nil {
		log.Fatalf("history store init failed: %v", err)
	}
	defer store.Close()

	sessions := session.NewFileProvider(cfg.DataDir)
	identity, err := sessions.Current()
	if err != nil {
		log.Fatalf("session identity init failed: %v", err)
	}
	log.Printf("session %s", identity.SessionID)

	prefStore := prefs.NewStore(cfg.DataDir)
	prefStore.Load()

	client := dialog.NewClient(cfg.DialogEndpointURL, cfg.DialogTimeout)

	var (
		capture voice.CaptureProvider
		output  voice.OutputProvider
		bridge  *voice.BridgeProvider
	)
	switch cfg.VoiceProvider {
	case "mock":
		p := voice.NewMockProvider()
		capture = p
		output = p
		log.Printf("voice provider: mock")
	default:
		bridge = voice.NewBridgeProvider()
		capture = bridge
		output = bridge
		log.Printf("voice provider: bridge")
	}

	monitor := permission.NewMonitor(permission.StaticSource{Value: permission.Prompt})

	chatLog := history.NewLog(store, identity.SessionID, history.DefaultWelcome, cfg.HistoryLimit)
	controller := voice.NewController(voice.ControllerConfig{
		Capture:     capture,
		Output:      output,
		Exchange:    client,
		History:     chatLog,
		Permissions: monitor,
		Prefs:       prefStore.Snapshot,
		Navigate: func(action string) {
			log.Printf("navigate requested: %s", action)
		},
		Metrics:         metrics,
		SessionID:       identity.SessionID,
		ReplyDelayMin:   cfg.ReplyDelayMin,
		ReplyDelayMax:   cfg.ReplyDelayMax,
		SilenceWatchdog: cfg.SilenceWatchdog,
	})
	controller.Start(ctx)
	defer controller.Close()

	api := httpapi.New(cfg, controller, bridge, monitor, prefStore, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
