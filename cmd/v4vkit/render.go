package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/v4vkit/v4vkit"
)

var renderCommand = &cli.Command{
	Name:  "render",
	Usage: "Generate a test feed from the feed section of the config",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "out",
			Usage: "directory to write feed.xml and README.md to",
			Value: ".",
		},
	},
	Action: renderFeed,
}

func renderFeed(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	feed, err := v4vkit.RenderFeed(cfg.Feed, time.Now())
	if err != nil {
		return err
	}

	readme, err := v4vkit.RenderReadme(cfg.Feed)
	if err != nil {
		return err
	}

	// Never publish a feed our own validator rejects.
	report, err := v4vkit.ValidateFeed(feed)
	if err != nil {
		return fmt.Errorf("rendered feed does not parse: %w", err)
	}
	if !report.IsValid {
		return fmt.Errorf("rendered feed is invalid: %v", report.Errors)
	}

	dir := ctx.String("out")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	files := []struct {
		name string
		data []byte
	}{
		{"feed.xml", feed},
		{"README.md", readme},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, f.data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintf(ctx.App.Writer, "wrote %s\n", path)
	}

	recipients := cfg.Feed.Recipients()
	fmt.Fprintf(ctx.App.Writer, "\nFeed URL: %s\n", cfg.Feed.FeedURL())
	fmt.Fprintf(ctx.App.Writer, "Episodes: %d, recipients: %d\n",
		len(cfg.Feed.Episodes), len(recipients))
	fmt.Fprintln(ctx.App.Writer, recipientTable(recipients))

	return nil
}
