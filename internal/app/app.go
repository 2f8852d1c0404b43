package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/yusuftnc/qchat/internal/api"
	"github.com/yusuftnc/qchat/internal/backend"
	"github.com/yusuftnc/qchat/internal/cli"
	"github.com/yusuftnc/qchat/internal/config"
	"github.com/yusuftnc/qchat/internal/llm"
	"github.com/yusuftnc/qchat/internal/service"
	"github.com/yusuftnc/qchat/internal/store"
	"github.com/yusuftnc/qchat/internal/transport"
)

// logLevel is shared by every logger this package installs so a config
// change can adjust it at runtime.
var logLevel = new(slog.LevelVar)

// RunServer starts the gateway that serves the backend contract on top of
// Ollama and blocks until it is stopped.
func RunServer() int {
	cfg, err := loadConfig()
	if err != nil {
		// slog is not yet configured, so use the default logger for this critical error.
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	setupLogger(cfg.LogLevel, os.Stdout)
	logConfigSource()
	watchLogLevel(slog.LevelDebug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	waitForOllama(ctx, cfg.OllamaURL, 3*time.Second)

	server := NewServer(cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting server", "port", cfg.AppPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server failed", "error", err)
		return 1
	}
	slog.Info("Server stopped")
	return 0
}

// NewServer wires the gateway's handlers without starting it.
func NewServer(cfg *config.Config) *http.Server {
	provider := llm.NewOllamaProvider(cfg.OllamaURL)
	gateway := service.NewGatewayService(provider, cfg.HealthTimeout)

	router := api.NewRouter(
		api.NewChatHandler(gateway),
		api.NewModelHandler(gateway),
		api.RouterConfig{APIKey: cfg.APIKey, AllowedOrigins: cfg.CORSAllowedOrigins},
	)

	return &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		WriteTimeout:      0, // Disabled for streaming endpoints
		IdleTimeout:       120 * time.Second,
	}
}

// RunClient starts the interactive terminal client.
func RunClient() int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	logOut, floor, closeLog := clientLogOutput(cfg.LogFile)
	defer closeLog()
	setupLogger(cfg.LogLevel, logOut)
	logLevel.Set(max(logLevel.Level(), floor))
	logConfigSource()
	watchLogLevel(floor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	session, _, err := NewClient(cfg, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	session.Start(ctx)

	if err := session.Run(ctx, historyFile()); err != nil {
		slog.Error("Session ended with error", "error", err)
		return 1
	}
	return 0
}

// NewClient builds the conversation store and services for cfg and returns a
// session that renders to out.
func NewClient(cfg *config.Config, out io.Writer) (*cli.Session, *store.Store, error) {
	var b backend.Backend
	switch cfg.Provider {
	case config.ProviderOpenAI:
		client := transport.NewClient(cfg.OpenAIBaseURL, "")
		client.SetAuthToken(cfg.OpenAIAPIKey)
		b = backend.NewOpenAIBackend(client)
	case config.ProviderBackend, "":
		b = backend.NewHTTPBackend(transport.NewClient(cfg.APIBaseURL, cfg.APIKey))
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	slog.Info("Client configured", "provider", cfg.Provider, "model", cfg.DefaultModel, "stream", cfg.Stream)

	st := store.New(cfg.DefaultModel)
	session := cli.NewSession(st,
		service.NewChatService(st, b, cfg.Stream),
		service.NewQnAService(st, b, cfg.Stream),
		service.NewModelService(st, b, cfg.HealthTimeout),
		out,
	)
	return session, st, nil
}

// loadConfig reads and validates the configuration both binaries share.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func logConfigSource() {
	configFileUsed := viper.ConfigFileUsed()
	if configFileUsed != "" {
		slog.Info("Successfully loaded configuration from file.", "file", configFileUsed)
	} else {
		slog.Info("Configuration file not found. Using environment variables and defaults.")
	}
}

func setupLogger(level string, w io.Writer) {
	logLevel.Set(parseLevel(level))
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// watchLogLevel follows LOG_LEVEL changes in the config file, never going
// below floor.
func watchLogLevel(floor slog.Level) {
	config.Watch(func(cfg *config.Config, e fsnotify.Event) {
		logLevel.Set(max(parseLevel(cfg.LogLevel), floor))
		slog.Info("Configuration changed", "file", e.Name, "log_level", logLevel.Level().String())
	})
}

// clientLogOutput keeps routine logs off the terminal the REPL draws on.
// Without a log file only warnings and errors reach stderr.
func clientLogOutput(path string) (io.Writer, slog.Level, func()) {
	if path == "" {
		return os.Stderr, slog.LevelWarn, func() {}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open log file %s: %v\n", path, err)
		return os.Stderr, slog.LevelWarn, func() {}
	}
	return f, slog.LevelDebug, func() {
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Could not close log file: %v\n", err)
		}
	}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(home, ".qchat")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Warn("Could not create history directory", "dir", dir, "error", err)
		return ""
	}
	return filepath.Join(dir, "history")
}

func waitForOllama(ctx context.Context, ollamaURL string, interval time.Duration) {
	slog.Info("Waiting for Ollama to be ready...")
	client := &http.Client{Timeout: 2 * time.Second}
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ollamaURL, nil)
		if err != nil {
			slog.Error("Invalid Ollama URL", "url", ollamaURL, "error", err)
			return
		}
		resp, err := client.Do(req)
		if err == nil {
			if bErr := resp.Body.Close(); bErr != nil {
				slog.Warn("Failed to close response body in ollama health check", "error", bErr)
			}
			if resp.StatusCode == http.StatusOK {
				slog.Info("Ollama is ready.")
				return
			}
		}
		slog.Debug("Ollama not ready yet, retrying...", "url", ollamaURL, "interval", interval, "error", err)

		select {
		case <-ctx.Done():
			slog.Warn("Stopped waiting for Ollama", "error", ctx.Err())
			return
		case <-time.After(interval):
		}
	}
}
