// Package main runs the browser command server: one automated browser
// controlled by other local processes over a unix socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/entrhq/commonplayer/pkg/config"
	"github.com/entrhq/commonplayer/pkg/controller"
	"github.com/entrhq/commonplayer/pkg/driver"
	"github.com/entrhq/commonplayer/pkg/driver/pwdriver"
	"github.com/entrhq/commonplayer/pkg/driver/roddriver"
	"github.com/entrhq/commonplayer/pkg/logging"
	"github.com/entrhq/commonplayer/pkg/server"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile  string
	SocketPath  string
	Backend     string
	Browser     string
	Headless    bool
	Extensions  []string
	LogLevel    string
	LogStderr   bool
	ShowVersion bool

	// set records which flags were given explicitly
	set map[string]bool
}

func main() {
	cli := parseFlags(os.Args[1:])

	if cli.ShowVersion {
		fmt.Printf("browser-server v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := run(ctx, cli); err != nil {
		cancel()
		log.Printf("browser-server: %v", err)
		os.Exit(1)
	}
	cancel()
}

// parseFlags parses command line flags
func parseFlags(args []string) *CLIConfig {
	cli := &CLIConfig{set: make(map[string]bool)}
	fs := flag.NewFlagSet("browser-server", flag.ExitOnError)

	fs.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	fs.StringVar(&cli.SocketPath, "socket", "", "Socket path (default "+config.DefaultSocketPath()+")")
	fs.StringVar(&cli.Backend, "backend", "", "Browser backend: playwright or rod")
	fs.StringVar(&cli.Browser, "browser", "", "Browser: chromium, firefox or webkit")
	fs.BoolVar(&cli.Headless, "headless", false, "Run the browser without a window")
	fs.Func("extension", "Unpacked extension directory to preload (repeatable)", func(v string) error {
		cli.Extensions = append(cli.Extensions, v)
		return nil
	})
	fs.StringVar(&cli.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	fs.BoolVar(&cli.LogStderr, "log-stderr", false, "Log to stderr instead of a session file")
	fs.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "browser-server - automated browser behind a local socket\n\n")
		fmt.Fprintf(os.Stderr, "Usage: browser-server [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  browser-server -extension ~/ext/ublock -log-stderr\n")
		fmt.Fprintf(os.Stderr, "  browser-server -config commonplayer.yaml -backend rod -headless\n\n")
	}

	_ = fs.Parse(args)
	fs.Visit(func(f *flag.Flag) { cli.set[f.Name] = true })
	return cli
}

// loadConfig merges defaults, the config file, environment and flags, in
// increasing order of precedence.
func loadConfig(cli *CLIConfig, lookupEnv func(string) (string, bool)) (*config.Config, error) {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(lookupEnv); err != nil {
		return nil, err
	}

	if cli.set["socket"] {
		cfg.SocketPath = cli.SocketPath
	}
	if cli.set["backend"] {
		cfg.Backend = config.Backend(strings.ToLower(cli.Backend))
	}
	if cli.set["browser"] {
		cfg.Browser = cli.Browser
	}
	if cli.set["headless"] {
		cfg.Headless = cli.Headless
	}
	if cli.set["extension"] {
		cfg.Extensions = cli.Extensions
	}
	if cli.set["log-level"] {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.set["log-stderr"] {
		cfg.Logging.Stderr = cli.LogStderr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Logging.Stderr {
		return logging.NewWriterLogger("browser-server", os.Stderr, level), nil
	}
	logging.SetLogDirectory(cfg.Logging.Dir)
	logger, err := logging.NewLogger("browser-server", level)
	if err != nil {
		// NewLogger already fell back to stderr
		logger.Warnf("%v", err)
	}
	return logger, nil
}

// shutdowner is implemented by factories holding resources beyond the
// browsers they build.
type shutdowner interface {
	Shutdown() error
}

func newFactory(cfg *config.Config, logger *logging.Logger) (driver.Factory, error) {
	switch cfg.Backend {
	case config.BackendRod:
		f, err := roddriver.NewFactory(roddriver.Options{
			Bin:        cfg.BrowserBin,
			Headless:   cfg.Headless,
			Extensions: cfg.Extensions,
			Flags:      cfg.BrowserFlags,
			Timeout:    cfg.NavigationTimeout,
		}, logger.Named("rod"))
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		f, err := pwdriver.NewFactory(pwdriver.Options{
			Browser:    cfg.Browser,
			Headless:   cfg.Headless,
			Extensions: cfg.Extensions,
			Timeout:    cfg.NavigationTimeout,
			Install:    cfg.InstallDriver,
		}, logger.Named("playwright"))
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}

// run wires the configuration into a server and serves until ctx ends.
func run(ctx context.Context, cli *CLIConfig) error {
	cfg, err := loadConfig(cli, os.LookupEnv)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	factory, err := newFactory(cfg, logger)
	if err != nil {
		return fmt.Errorf("configuring %s backend: %w", cfg.Backend, err)
	}
	if s, ok := factory.(shutdowner); ok {
		defer func() {
			if err := s.Shutdown(); err != nil {
				logger.Warnf("backend shutdown: %v", err)
			}
		}()
	}

	session := server.NewSession(factory, controller.DefaultRegistry(), controller.Options{
		ConsentTimeout:   cfg.ConsentTimeout,
		ComponentTimeout: cfg.ComponentTimeout,
		Logger:           logger.Named("controller"),
	}, logger.Named("session"))

	srv := server.New(session, server.Options{
		SocketPath:  cfg.SocketPath,
		IdleTimeout: cfg.IdleTimeout,
		Logger:      logger.Named("server"),
	})
	if err := srv.Listen(); err != nil {
		return err
	}

	logger.Infof("browser-server v%s backend=%s browser=%s socket=%s", version, cfg.Backend, cfg.Browser, cfg.SocketPath)
	if !cfg.Logging.Stderr && logger.LogPath() != "" {
		fmt.Fprintf(os.Stderr, "listening on %s (log: %s)\n", cfg.SocketPath, logger.LogPath())
	}
	return srv.Serve(ctx)
}
