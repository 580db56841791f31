package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/v4vkit/v4vkit"
	"github.com/v4vkit/v4vkit/internal/config"
)

func main() {
	if isTerminal(os.Stdout) {
		tableStyle = table.StyleRounded
	}

	err := newApp().Run(os.Args)
	if err != nil {
		fatal(err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()

	app.Name = "v4vkit"
	app.Usage = "Validate podcast value blocks and send test payments"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to the YAML config file",
			EnvVars: []string{"CONFIG_PATH"},
		},
		&cli.StringFlag{
			Name:  "loglevel",
			Usage: "Log level (debug, info, warn, error)",
		},
		&cli.StringFlag{
			Name:  "host",
			Usage: "lnd instance rpc address",
		},
		&cli.StringFlag{
			Name:  "network",
			Usage: "the network",
		},
		&cli.StringFlag{
			Name:  "macpath",
			Usage: "Path to lnd's mac dir",
		},
		&cli.StringFlag{
			Name:  "tlspath",
			Usage: "Path to lnd's tls cert",
		},
	}
	app.Commands = append(app.Commands,
		validateCommand,
		recipientsCommand,
		renderCommand,
		lnurlCommand,
		capsCommand,
		payCommand,
	)

	return app
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[v4vkit] %v\n", err)
	os.Exit(1)
}

// loadConfig reads the config file and lets global flags override it.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return nil, err
	}

	if ctx.IsSet("loglevel") {
		cfg.Log.Level = ctx.String("loglevel")
	}
	if ctx.IsSet("host") {
		cfg.Lnd.Address = ctx.String("host")
	}
	if ctx.IsSet("network") {
		cfg.Lnd.Network = ctx.String("network")
	}
	if ctx.IsSet("macpath") {
		cfg.Lnd.MacaroonDir = ctx.String("macpath")
	}
	if ctx.IsSet("tlspath") {
		cfg.Lnd.TLSPath = ctx.String("tlspath")
	}

	if err := setLogger(cfg.Log.Level); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setLogger will initialize the log format
func setLogger(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	logrus.SetLevel(lvl)
	customFormatter := new(logrus.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02 15:04:05"
	customFormatter.FullTimestamp = true
	logrus.SetFormatter(customFormatter)
	logrus.SetOutput(os.Stderr)

	return nil
}

func getLND(ctx context.Context, cfg *config.Config) (*v4vkit.LndWallet,
	error) {

	return v4vkit.ConnectLnd(ctx, cfg.LndConfig())
}

func getFetcher(cfg *config.Config) (*v4vkit.Fetcher, error) {
	return v4vkit.NewFetcher(cfg.FetchConfig())
}

// loadFeed fetches a feed from a URL or reads it from disk.
func loadFeed(ctx *cli.Context, cfg *config.Config) ([]byte, error) {
	target := ctx.Args().First()
	if target == "" {
		return nil, fmt.Errorf("missing feed URL or path argument")
	}

	fetcher, err := getFetcher(cfg)
	if err != nil {
		return nil, err
	}

	return fetcher.Fetch(ctx.Context, target)
}
