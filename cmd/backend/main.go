// Package main provides the entry point for the hotspot portal backend.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hotspotbd/portal-backend/internal/api"
	"github.com/hotspotbd/portal-backend/internal/approval"
	"github.com/hotspotbd/portal-backend/internal/auth"
	"github.com/hotspotbd/portal-backend/internal/config"
	"github.com/hotspotbd/portal-backend/internal/credentials"
	"github.com/hotspotbd/portal-backend/internal/mikrotik"
	"github.com/hotspotbd/portal-backend/internal/store"
	"github.com/hotspotbd/portal-backend/internal/telegram"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "portal-backend",
		Short: "Hotspot portal backend with manual payment approval",
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")

	root.AddCommand(serveCmd(), gencredsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the portal API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("  Hotspot Portal Backend")
	fmt.Println("  bKash payment approval workflow")
	fmt.Println("═══════════════════════════════════════════════════════════════")

	if err := os.MkdirAll(cfg.Server.UploadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	st, err := store.Open(cfg.DB.Path)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer st.Close()
	fmt.Printf("  Database: SQLite initialized (%s)\n", cfg.DB.Path)

	keyPair, err := auth.LoadOrGenerateKeyPair(
		cfg.Auth.KeysDir+"/private.pem",
		cfg.Auth.KeysDir+"/public.pem",
	)
	if err != nil {
		logger.Fatal("failed to initialize JWT keys", zap.Error(err))
	}
	jwtService := auth.NewJWTService(keyPair, cfg.Auth.Issuer)
	fmt.Println("  JWT Service: Initialized")

	controller, err := buildController(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create router controller", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	testCtx, testCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := controller.TestConnection(testCtx); err != nil {
		logger.Warn("router connection test failed", zap.Error(err))
		fmt.Printf("  Router Status: Connection failed - %s\n", err.Error())
	} else {
		fmt.Println("  Router Status: Connected")
	}
	testCancel()

	generator := credentials.NewGenerator("user")

	var notifier approval.Notifier = approval.NopNotifier{}
	var bot *telegram.Bot
	if cfg.Telegram.Enabled {
		bot, err = telegram.NewBot(
			cfg.Telegram.BotToken,
			cfg.Telegram.AdminChatID,
			cfg.Server.UploadDir,
			controller,
			logger.Named("telegram"),
		)
		if err != nil {
			logger.Fatal("failed to create telegram bot", zap.Error(err))
		}
		notifier = bot
		fmt.Println("  Telegram Bot: Initialized")
	} else {
		fmt.Println("  Telegram Bot: Not configured (set telegram.enabled to use it)")
	}

	orchestrator := approval.NewOrchestrator(st, controller, notifier, generator, logger.Named("approval"))

	if bot != nil {
		bot.SetHandler(orchestrator)
		go bot.Run(ctx)
	}

	pending, err := st.CountPending()
	if err == nil && pending > 0 {
		fmt.Printf("  Pending Requests: %d awaiting decision\n", pending)
	}

	handler := api.NewHandler(
		controller,
		orchestrator,
		st,
		jwtService,
		cfg.Server.UploadDir,
		cfg.Auth.TokenTTL,
		cfg.Server.AdminToken,
		logger.Named("api"),
	)
	router := api.NewRouter(handler)

	addr := ":" + cfg.Server.Port

	if cfg.Server.PrintQR {
		fmt.Printf("\n  Portal URL: %s\n\n", cfg.Server.BaseURL)
		qrterminal.GenerateHalfBlock(cfg.Server.BaseURL, qrterminal.L, os.Stdout)
	}

	fmt.Printf("\n  Server starting on http://localhost%s\n", addr)
	fmt.Println("═══════════════════════════════════════════════════════════════")

	httpServer := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\n  Shutting down...")
	cancel() // Stop the bot update loop
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

// buildController selects the router transport from configuration.
func buildController(cfg *config.Config, logger *zap.Logger) (mikrotik.Controller, error) {
	switch cfg.Mikrotik.Transport {
	case "api":
		if cfg.Mikrotik.Host == "" {
			fmt.Println("  Router: Not configured (set mikrotik.host to enable)")
			return &mikrotik.NoopController{}, nil
		}
		fmt.Printf("  Router: RouterOS API @ %s\n", cfg.Mikrotik.Host)
		return mikrotik.NewAPIClient(mikrotik.Config{
			Host:     cfg.Mikrotik.Host,
			Port:     cfg.Mikrotik.Port,
			Username: cfg.Mikrotik.Username,
			Password: cfg.Mikrotik.Password,
			Timeout:  cfg.Mikrotik.Timeout,
		}, logger.Named("mikrotik")), nil
	case "ssh":
		fmt.Printf("  Router: RouterOS SSH @ %s\n", cfg.Mikrotik.Host)
		return mikrotik.NewSSHClient(mikrotik.SSHConfig{
			Host:       cfg.Mikrotik.Host,
			Port:       cfg.Mikrotik.Port,
			Username:   cfg.Mikrotik.Username,
			Password:   cfg.Mikrotik.Password,
			PrivateKey: cfg.Mikrotik.SSHPrivateKey,
			Timeout:    cfg.Mikrotik.Timeout,
		}, logger.Named("mikrotik"))
	case "noop", "":
		fmt.Println("  Router: Noop (development mode)")
		return &mikrotik.NoopController{}, nil
	default:
		return nil, fmt.Errorf("unknown mikrotik transport %q", cfg.Mikrotik.Transport)
	}
}
