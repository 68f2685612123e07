package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gologme/log"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/Arun445/simpleperf/internal/client"
	"github.com/Arun445/simpleperf/internal/config"
	"github.com/Arun445/simpleperf/internal/metrics"
	"github.com/Arun445/simpleperf/internal/server"
	"github.com/Arun445/simpleperf/internal/stats"
)

var (
	configFlag      = cli.StringFlag{Name: "config", Usage: "read settings from an HJSON/JSON or YAML file"}
	loglevelFlag    = cli.StringFlag{Name: "loglevel", Value: "info", Usage: "loglevel to enable: error, warn, info, debug or trace"}
	logtoFlag       = cli.StringFlag{Name: "logto", Value: "stderr", Usage: "file path to log to, or \"stderr\""}
	portFlag        = cli.IntFlag{Name: "port, p", Usage: "server port (default 8088)"}
	formatFlag      = cli.StringFlag{Name: "format, f", Usage: "display unit: B, KB or MB (default MB)"}
	ioTimeoutFlag   = cli.DurationFlag{Name: "io-timeout", Usage: "deadline for every socket read and write, 0 disables (default 30s)"}
	metricsAddrFlag = cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address"}

	bindFlag        = cli.StringFlag{Name: "bind, b", Usage: "address to listen on (default 127.0.0.1)"}
	maxSessionsFlag = cli.IntFlag{Name: "max-sessions", Usage: "concurrent sessions to handle, 0 means unbounded"}

	serverIPFlag = cli.StringFlag{Name: "serverip, I", Usage: "server address to connect to (default 127.0.0.1)"}
	timeFlag     = cli.IntFlag{Name: "time, t", Usage: "total transfer time in seconds (default 10)"}
	intervalFlag = cli.IntFlag{Name: "interval, i", Usage: "print statistics every N seconds, 0 disables"}
	parallelFlag = cli.IntFlag{Name: "parallel, P", Usage: "number of parallel streams (default 1)"}
	numFlag      = cli.StringFlag{Name: "num, n", Usage: "send exactly this many bytes, e.g. 500MB"}
	chainFlag    = cli.BoolFlag{Name: "chain", Usage: "run the timed phase before the byte-count phase"}
	progressFlag = cli.BoolFlag{Name: "progress", Usage: "show a progress bar for byte-count transfers"}
)

func main() {
	app := newApp(context.Background(), os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newApp builds the command tree. Statistics go to stdout, logs and the
// progress bar to stderr.
func newApp(ctx context.Context, stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "simpleperf"
	app.Usage = "measure TCP throughput between two hosts"
	app.Writer = stdout
	app.ErrWriter = stderr

	common := []cli.Flag{configFlag, loglevelFlag, logtoFlag, portFlag, formatFlag, ioTimeoutFlag, metricsAddrFlag}
	app.Commands = []cli.Command{
		{
			Name:   "server",
			Usage:  "receive data and report per-connection throughput",
			Flags:  append([]cli.Flag{bindFlag, maxSessionsFlag}, common...),
			Action: serverAction(ctx, stdout, stderr),
		},
		{
			Name:   "client",
			Usage:  "send data to a server and report throughput",
			Flags:  append([]cli.Flag{serverIPFlag, timeFlag, intervalFlag, parallelFlag, numFlag, chainFlag, progressFlag}, common...),
			Action: clientAction(ctx, stdout, stderr),
		},
	}
	return app
}

func serverAction(ctx context.Context, stdout, stderr io.Writer) func(c *cli.Context) error {
	return func(c *cli.Context) error {
		logger, closeLog, err := newLogger(c, stderr)
		if err != nil {
			return err
		}
		defer closeLog()

		cfg := config.Server()
		if err := loadConfig(c, cfg); err != nil {
			return err
		}
		serverFlags(c, cfg)

		m := metrics.New()
		srv, err := server.New(cfg, logger, stats.NewReporter(stdout), m)
		if err != nil {
			logger.Errorf("Invalid server configuration: %v", err)
			return err
		}

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := srv.Listen(ctx); err != nil {
			logger.Errorf("%v", err)
			return err
		}
		serveMetrics(ctx, cfg.MetricsAddr, m, logger)
		return srv.Serve(ctx)
	}
}

func clientAction(ctx context.Context, stdout, stderr io.Writer) func(c *cli.Context) error {
	return func(c *cli.Context) error {
		logger, closeLog, err := newLogger(c, stderr)
		if err != nil {
			return err
		}
		defer closeLog()

		cfg := config.Client()
		if err := loadConfig(c, cfg); err != nil {
			return err
		}
		clientFlags(c, cfg)

		transfer, err := cfg.Transfer()
		if err != nil {
			logger.Errorf("Invalid client configuration: %v", err)
			return err
		}

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		m := metrics.New()
		serveMetrics(ctx, cfg.MetricsAddr, m, logger)

		opts := []client.Option{
			client.WithLogger(logger),
			client.WithReporter(stats.NewReporter(stdout)),
			client.WithMetrics(m),
		}
		if cfg.Progress && cfg.Parallel == 1 {
			opts = append(opts, client.WithProgress(stderr))
		}

		logger.Infof("Starting %d stream(s) to %s", cfg.Parallel, transfer.Address())
		_, err = client.RunStreams(ctx, transfer, cfg.Parallel, opts...)
		return err
	}
}

func loadConfig(c *cli.Context, v interface{}) error {
	path := c.String(configFlag.Name)
	if path == "" {
		return nil
	}
	return errors.Wrap(config.Load(path, v), "config")
}

// serverFlags applies the flags given on the command line over defaults,
// environment and config file.
func serverFlags(c *cli.Context, cfg *config.ServerConfig) {
	if c.IsSet("bind") {
		cfg.Bind = c.String("bind")
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("format") {
		cfg.Format = c.String("format")
	}
	if c.IsSet("io-timeout") {
		cfg.IOTimeout = c.Duration("io-timeout")
	}
	if c.IsSet("max-sessions") {
		cfg.MaxSessions = c.Int("max-sessions")
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}
}

func clientFlags(c *cli.Context, cfg *config.ClientConfig) {
	if c.IsSet("serverip") {
		cfg.ServerIP = c.String("serverip")
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("time") {
		cfg.Time = time.Duration(c.Int("time")) * time.Second
	}
	if c.IsSet("interval") {
		cfg.Interval = time.Duration(c.Int("interval")) * time.Second
	}
	if c.IsSet("parallel") {
		cfg.Parallel = c.Int("parallel")
	}
	if c.IsSet("num") {
		cfg.Num = c.String("num")
	}
	if c.IsSet("format") {
		cfg.Format = c.String("format")
	}
	if c.IsSet("io-timeout") {
		cfg.IOTimeout = c.Duration("io-timeout")
	}
	if c.IsSet("chain") {
		cfg.ChainPhases = c.Bool("chain")
	}
	if c.IsSet("progress") {
		cfg.Progress = c.Bool("progress")
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}
}

func newLogger(c *cli.Context, stderr io.Writer) (*log.Logger, func(), error) {
	var logger *log.Logger
	closeLog := func() {}

	switch logto := c.String(logtoFlag.Name); logto {
	case "", "stderr":
		logger = log.New(stderr, "", log.Flags())
	default:
		logfd, err := os.OpenFile(logto, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "open log file %s", logto)
		}
		logger = log.New(logfd, "", log.Flags())
		closeLog = func() { _ = logfd.Close() }
	}

	setLogLevel(c.String(loglevelFlag.Name), logger)
	return logger, closeLog, nil
}

func setLogLevel(loglevel string, logger *log.Logger) {
	levels := [...]string{"error", "warn", "info", "debug", "trace"}
	loglevel = strings.ToLower(loglevel)

	contains := func() bool {
		for _, l := range levels {
			if l == loglevel {
				return true
			}
		}
		return false
	}

	if !contains() {
		logger.Infoln("Loglevel parse failed. Set default level(info)")
		loglevel = "info"
	}

	for _, l := range levels {
		logger.EnableLevel(l)
		if l == loglevel {
			break
		}
	}
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *log.Logger) {
	if addr == "" {
		return
	}
	go func() {
		if err := m.Serve(ctx, addr, logger); err != nil {
			logger.Errorf("%v", err)
		}
	}()
}
