// Package main provides the btchat command-line chat program.
//
// Run one side as Responder and the other as Initiator:
//
//	btchat -role responder
//	btchat -role initiator -peer 60:E9:AA:46:FE:B4
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/opd-ai/btchat"
	"github.com/opd-ai/btchat/config"
	"github.com/opd-ai/btchat/metrics"
	"github.com/opd-ai/btchat/transport"
	"github.com/sirupsen/logrus"
)

// Exit statuses.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// CLIConfig holds the raw command-line values.
type CLIConfig struct {
	configPath  string
	role        string
	network     string
	peer        string
	channel     uint
	dbPath      string
	storeDriver string
	redisAddr   string
	logLevel    string
	logFormat   string
	logFile     string
	metricsAddr string
	quiet       bool
}

// parseCLIFlags parses args and reports which flags were given explicitly.
func parseCLIFlags(args []string, stderr io.Writer) (*CLIConfig, map[string]bool, error) {
	cli := &CLIConfig{}
	fs := flag.NewFlagSet("btchat", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cli.configPath, "config", "", "TOML configuration file")

	// Connection
	fs.StringVar(&cli.role, "role", "responder", "Connection role (initiator|responder)")
	fs.StringVar(&cli.network, "network", string(transport.NetworkRFCOMM), "Socket family (rfcomm|tcp)")
	fs.StringVar(&cli.peer, "peer", "", "Peer address for an initiator, bind address for a responder")
	fs.UintVar(&cli.channel, "channel", config.DefaultChannel, "RFCOMM channel (TCP port with -network tcp)")

	// Message log
	fs.StringVar(&cli.dbPath, "db", "", "SQLite database path (default messages.db)")
	fs.StringVar(&cli.storeDriver, "store", "", "Message store driver (sqlite|redis|memory)")
	fs.StringVar(&cli.redisAddr, "redis-addr", "", "Redis address for -store redis")

	// Logging
	fs.StringVar(&cli.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&cli.logFormat, "log-format", "", "Log format (text|json)")
	fs.StringVar(&cli.logFile, "log-file", "", "Log file path (default: stderr)")

	fs.StringVar(&cli.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.BoolVar(&cli.quiet, "quiet", false, "Do not print the input prompt")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() > 0 {
		return nil, nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return cli, set, nil
}

// buildConfig loads the config file (if any) and applies explicit flags on
// top of it.
func buildConfig(cli *CLIConfig, set map[string]bool) (config.Config, error) {
	cfg := config.Default()
	if cli.configPath != "" {
		loaded, err := config.Load(cli.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if set["role"] {
		role, err := transport.ParseRole(cli.role)
		if err != nil {
			return config.Config{}, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		cfg.Role = role
	}
	if set["network"] {
		network, err := transport.ParseNetwork(cli.network)
		if err != nil {
			return config.Config{}, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		cfg.Network = network
	}
	if set["peer"] {
		cfg.Peer = cli.peer
	}
	if set["channel"] {
		if cli.channel > 65535 {
			return config.Config{}, fmt.Errorf("%w: channel %d out of range", config.ErrInvalidConfig, cli.channel)
		}
		cfg.Channel = uint16(cli.channel)
	}
	if set["db"] {
		cfg.Store.Path = cli.dbPath
	}
	if set["store"] {
		cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cli.storeDriver))
	}
	if set["redis-addr"] {
		cfg.Store.RedisAddr = cli.redisAddr
	}
	if set["log-level"] {
		cfg.Log.Level = cli.logLevel
	}
	if set["log-format"] {
		cfg.Log.Format = strings.ToLower(strings.TrimSpace(cli.logFormat))
	}
	if set["log-file"] {
		cfg.Log.File = cli.logFile
	}
	if set["metrics-addr"] {
		cfg.MetricsAddr = cli.metricsAddr
	}
	if set["quiet"] {
		cfg.Quiet = cli.quiet
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// setupLogging configures the global logger. The returned function closes
// the log file, if one was opened.
func setupLogging(cfg config.LogConfig, stderr io.Writer) (func(), error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(level)

	if cfg.Format == config.FormatJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.File == "" {
		logrus.SetOutput(stderr)
		return func() {}, nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logrus.SetOutput(f)
	return func() { _ = f.Close() }, nil
}

// setupSignalHandling cancels ctx on SIGINT or SIGTERM.
func setupSignalHandling(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// run is main without the os.Exit, so tests can drive it.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cli, set, err := parseCLIFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "btchat: %v\n", err)
		return exitUsage
	}

	cfg, err := buildConfig(cli, set)
	if err != nil {
		fmt.Fprintf(stderr, "btchat: configuration error: %v\n", err)
		return exitError
	}

	closeLog, err := setupLogging(cfg.Log, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "btchat: %v\n", err)
		return exitError
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.MetricsAddr != "" {
		srv, err := metrics.Listen(cfg.MetricsAddr)
		if err != nil {
			fmt.Fprintf(stderr, "btchat: metrics: %v\n", err)
			return exitError
		}
		go func() {
			if err := srv.Serve(ctx); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "run",
					"error":    err.Error(),
				}).Warn("Metrics server stopped")
			}
		}()
	}

	session, err := btchat.New(cfg, btchat.WithStdio(stdin, stdout))
	if err != nil {
		fmt.Fprintf(stderr, "btchat: %v\n", err)
		return exitError
	}

	logrus.WithFields(logrus.Fields{
		"function": "run",
		"session":  session.ID(),
		"role":     cfg.Role.String(),
		"network":  cfg.Network,
		"channel":  cfg.Channel,
	}).Info("Starting session")

	err = session.Run(ctx)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// Interrupted by a signal while waiting for the peer.
		return exitOK
	default:
		fmt.Fprintf(stderr, "btchat: %v\n", err)
		return exitError
	}
}

func main() {
	ctx, stop := setupSignalHandling(context.Background())
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
