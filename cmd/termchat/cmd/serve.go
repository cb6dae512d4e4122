package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/termchat/internal/logging"
	"github.com/Tyrowin/termchat/internal/server"
)

var (
	serveHost      string
	servePort      int
	serveHTTPAddr  string
	serveMaxUsers  int
	serveLogFormat string
	serveLogLevel  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat broker",
	Long: `Run the chat broker.

Configuration is read from TERMCHAT_* environment variables (and a .env file
in the working directory, if present). Flags override the environment.

Examples:
  termchat serve                          # listen on 0.0.0.0:7878, HTTP on :8080
  termchat serve --port 9000 --http ""    # custom port, no HTTP server
  TERMCHAT_MAX_USERS=50 termchat serve    # raise the user cap`,
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.StringVar(&serveHost, "host", "", "TCP listen host (TERMCHAT_HOST)")
	flags.IntVar(&servePort, "port", 0, "TCP listen port (TERMCHAT_PORT)")
	flags.StringVar(&serveHTTPAddr, "http", "", `HTTP status and WebSocket address, "" disables (TERMCHAT_HTTP_ADDR)`)
	flags.IntVar(&serveMaxUsers, "max-users", 0, "maximum concurrent users, 0 for unlimited (TERMCHAT_MAX_USERS)")
	flags.StringVar(&serveLogFormat, "log-format", "", "text or json (TERMCHAT_LOG_FORMAT)")
	flags.StringVar(&serveLogLevel, "log-level", "", "debug, info, warn or error (TERMCHAT_LOG_LEVEL)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := server.LoadConfig()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = serveHost
	}
	if flags.Changed("port") {
		cfg.Port = servePort
	}
	if flags.Changed("http") {
		cfg.HTTPAddr = serveHTTPAddr
	}
	if flags.Changed("max-users") {
		cfg.MaxUsers = serveMaxUsers
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = serveLogFormat
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = serveLogLevel
	}

	logger := logging.New(cfg.LogFormat, cfg.LogLevel)

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to start broker", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("termchat broker started", "addr", srv.Addr(), "http", cfg.HTTPAddr, "max_users", cfg.MaxUsers)
	if err := srv.Run(ctx); err != nil {
		logger.Error("Broker stopped with error", "error", err)
		return err
	}
	logger.Info("termchat broker stopped")
	return nil
}
