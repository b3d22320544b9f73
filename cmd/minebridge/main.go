// minebridge - Minecraft server log bridge and whitelist verification bot
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/ernie/minebridge/internal/api"
	"github.com/ernie/minebridge/internal/auth"
	"github.com/ernie/minebridge/internal/bridge"
	"github.com/ernie/minebridge/internal/collector"
	"github.com/ernie/minebridge/internal/config"
	"github.com/ernie/minebridge/internal/discord"
	"github.com/ernie/minebridge/internal/dispatch"
	"github.com/ernie/minebridge/internal/eventbus"
	"github.com/ernie/minebridge/internal/rcon"
	"github.com/ernie/minebridge/internal/storage"
	"github.com/ernie/minebridge/internal/verify"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "rcon":
		cmdRcon(os.Args[2:])
	case "token":
		cmdToken(os.Args[2:])
	case "version":
		fmt.Printf("minebridge %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: minebridge <command> [options] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                      Run the log bridge and verification bot")
	fmt.Println("  rcon <command...>          Run one console command and print the response")
	fmt.Println("  token [--subject name]     Mint an admin API token")
	fmt.Println("  version                    Show version")
	fmt.Println("  help                       Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Optional YAML configuration file; environment variables override it")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  minebridge serve")
	fmt.Println("  minebridge serve --config /etc/minebridge/config.yml")
	fmt.Println("  minebridge rcon whitelist list")
	fmt.Println("  minebridge token --subject ops")
}

// newLogger builds the process logger from the log settings
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// logSource feeds server log lines to the dispatcher
type logSource interface {
	Run(ctx context.Context) error
	Connected() bool
}

type tcpSource struct {
	*collector.LineListener
}

func (s tcpSource) Run(ctx context.Context) error {
	return s.ListenAndServe(ctx)
}

// cmdServe runs the bridge until interrupted
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	logger.Info("minebridge starting", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	store, err := storage.OpenPath(ctx, cfg.Store.Path, logger)
	if err != nil {
		log.Fatalf("Failed to open mapping store: %v", err)
	}
	defer store.Close()

	executor := rcon.NewExecutor(rcon.Dialer(cfg.Rcon.Address(), cfg.Rcon.Password, cfg.Rcon.Timeout), logger)

	dc, err := discord.New(cfg.Discord.BotToken, cfg.Discord.GuildID, logger)
	if err != nil {
		log.Fatalf("Failed to create discord client: %v", err)
	}

	notifier := bridge.NewNotifier(dc, cfg.Discord.ChannelID, logger)
	manager := verify.NewManager(verify.Settings{
		GuildID:        cfg.Discord.GuildID,
		VerifiedRoleID: cfg.Discord.VerifiedRoleID,
		GracePeriod:    cfg.Verify.GracePeriod,
		PromptTTL:      cfg.Verify.PromptTTL,
		BootstrapDelay: cfg.Verify.BootstrapDelay,
	}, dc, executor, store, logger)

	var dispatcher *dispatch.Dispatcher
	handleLine := func(ctx context.Context, line string) {
		dispatcher.HandleLine(ctx, line)
	}
	var source logSource
	if cfg.Listener.LogPath != "" {
		source = collector.NewFileTailer(cfg.Listener.LogPath, handleLine, logger)
	} else {
		source = tcpSource{collector.NewLineListener(cfg.Listener.Address(), handleLine, logger)}
	}

	var sinks []dispatch.EventSink

	// Optional event mirror
	if cfg.NATS.URL != "" {
		publisher, err := eventbus.Connect(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			log.Fatalf("Failed to connect event bus: %v", err)
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}

	// Optional admin API
	var server *http.Server
	if cfg.HTTP.Addr != "" {
		authService := auth.NewService(cfg.HTTP.JWTSecret, cfg.HTTP.TokenDuration)
		router := api.NewRouter(api.Deps{
			Sessions: manager,
			Mappings: store,
			Bridge:   notifier,
			Logs:     source,
			Console:  executor,
		}, authService, logger)
		router.StartWebSocketHub(ctx)
		sinks = append(sinks, router.Hub())

		server = &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
	}

	dispatcher = dispatch.New(cfg.Discord.CommandChannelID, notifier, executor, dc, manager, logger, sinks...)

	// Set up signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 2)
	go func() {
		if err := source.Run(ctx); err != nil {
			errCh <- fmt.Errorf("log source: %w", err)
		}
	}()

	if server != nil {
		go func() {
			logger.Info("admin API listening", "addr", cfg.HTTP.Addr)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("HTTP server: %w", err)
			}
		}()
	}

	if err := dc.Start(ctx, dispatcher); err != nil {
		log.Fatalf("Failed to connect to discord: %v", err)
	}

	// Wait for signal or error
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("fatal component error, shutting down", "error", err)
	}

	// Sequential shutdown
	if server != nil {
		httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := server.Shutdown(httpCtx); err != nil {
			logger.Warn("HTTP server shutdown", "error", err)
		}
		httpCancel()
	}

	cancel()

	// Let scheduled channel deletions finish before dropping the connection
	done := make(chan struct{})
	go func() {
		manager.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cfg.Verify.GracePeriod + 5*time.Second):
		logger.Warn("gave up waiting for verification channel cleanup")
	}

	if err := dc.Close(); err != nil {
		logger.Warn("closing discord session", "error", err)
	}
	logger.Info("shutdown complete")
}

// cmdRcon runs a single console command
func cmdRcon(args []string) {
	fs := flag.NewFlagSet("rcon", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	command := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if command == "" {
		fmt.Fprintln(os.Stderr, "Usage: minebridge rcon [--config path] <command...>")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateRcon(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	password := cfg.Rcon.Password
	if password == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("RCON password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			log.Fatalf("Failed to read password: %v", err)
		}
		password = string(raw)
	}

	logger := newLogger(cfg.Log)
	executor := rcon.NewExecutor(rcon.Dialer(cfg.Rcon.Address(), password, cfg.Rcon.Timeout), logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Rcon.Timeout)
	defer cancel()

	response, err := executor.Execute(ctx, command)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to execute command: %v\n", err)
		os.Exit(1)
	}
	if response == "" {
		response = "(no response)"
	}
	fmt.Println(strings.TrimRight(response, "\n"))
}

// cmdToken prints a signed admin API token
func cmdToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	subject := fs.String("subject", "operator", "name recorded in the token")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	token, err := auth.NewService(cfg.HTTP.JWTSecret, cfg.HTTP.TokenDuration).GenerateToken(*subject)
	if err != nil {
		log.Fatalf("Failed to generate token (is HTTP_JWT_SECRET set?): %v", err)
	}
	fmt.Println(token)
}
