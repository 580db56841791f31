package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"github.com/v4vkit/v4vkit"
	"github.com/v4vkit/v4vkit/internal/config"
)

var payCommand = &cli.Command{
	Name:      "pay",
	Usage:     "Boost the recipients of a feed",
	ArgsUsage: "<feed url or path>",
	Description: `Split an amount across the value block of a feed (or of
	one episode) and pay every recipient through lnd: Lightning
	addresses via LNURL-pay, node pubkeys via keysend.`,
	Flags: []cli.Flag{
		&cli.Int64Flag{
			Name:  "amt",
			Usage: "total amount in sats, defaults to payment.default_amount_sats",
		},
		&cli.StringFlag{
			Name:  "episode",
			Usage: "episode guid or title, the channel block is used when empty",
		},
		&cli.StringFlag{
			Name:  "message",
			Usage: "boostagram message",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "fetch invoices and build keysends without paying",
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "pay even if the value block has errors",
		},
		&cli.BoolFlag{
			Name:  "notls",
			Usage: "set to true to use http instead of https for LNURL",
		},
	},
	Action: payFeed,
}

var capsCommand = &cli.Command{
	Name:   "caps",
	Usage:  "Connect to lnd and show the payment capabilities",
	Action: showCapabilities,
}

func feedBlock(ctx *cli.Context, cfg *config.Config) (*v4vkit.Feed,
	*v4vkit.ValueBlock, error) {

	data, err := loadFeed(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	doc, err := v4vkit.ParseDocument(data)
	if err != nil {
		return nil, nil, err
	}

	feed, err := v4vkit.ExtractFeed(doc)
	if err != nil {
		return nil, nil, err
	}

	block, err := feed.BlockFor(ctx.String("episode"))
	if err != nil {
		return nil, nil, err
	}
	if block == nil {
		return nil, nil, fmt.Errorf("no <podcast:value> block found")
	}

	return feed, block, nil
}

func payFeed(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	feed, block, err := feedBlock(ctx, cfg)
	if err != nil {
		return err
	}

	report := v4vkit.ValidateBlock(block.Raw())
	if !report.IsValid && !ctx.Bool("force") {
		return fmt.Errorf("value block has errors: %s",
			strings.Join(report.Errors, "; "))
	}

	sats := cfg.Payment.DefaultAmount
	if ctx.IsSet("amt") {
		sats = ctx.Int64("amt")
	}
	if sats <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	var wallet v4vkit.Wallet
	if ctx.Bool("dry-run") {
		wallet = &v4vkit.DryRunWallet{}
	} else {
		lnd, err := getLND(ctx.Context, cfg)
		if err != nil {
			return err
		}
		defer lnd.Close()
		wallet = lnd
	}

	fetcher, err := getFetcher(cfg)
	if err != nil {
		return err
	}

	payer := v4vkit.NewPayer(
		wallet, v4vkit.NewLNURLPayClient(fetcher.Client()),
		cfg.Fetch.NoTLS || ctx.Bool("notls"),
	)

	meta := v4vkit.BoostMeta{
		Podcast:    feed.Title,
		FeedURL:    ctx.Args().First(),
		AppName:    cfg.Payment.AppName,
		SenderName: cfg.Payment.SenderName,
		Message:    ctx.String("message"),
	}
	if id := ctx.String("episode"); id != "" {
		if episode, ok := feed.Episode(id); ok {
			meta.Episode = episode.Title
			meta.EpisodeGUID = episode.GUID
		}
	}

	outcomes := payer.PayBlock(ctx.Context, *block, sats, meta)

	var (
		rows   [][]string
		failed int
	)
	for _, o := range outcomes {
		status := "paid"
		switch {
		case o.Skipped:
			status = "skipped (below 1 sat)"
		case o.Err != nil:
			status = o.Err.Error()
			failed++
		case ctx.Bool("dry-run"):
			status = "dry run"
		}

		rows = append(rows, []string{
			o.Recipient.Name, string(o.Recipient.Type),
			strconv.FormatInt(o.AmountMsat/1000, 10), status,
		})
	}

	fmt.Fprintln(ctx.App.Writer, renderTable(
		[]string{"Recipient", "Type", "Sats", "Status"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	))

	if failed > 0 {
		return fmt.Errorf("%d of %d payments failed", failed,
			len(outcomes))
	}

	return nil
}

func showCapabilities(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	lnd, err := getLND(ctx.Context, cfg)
	if err != nil {
		return err
	}
	defer lnd.Close()

	caps := lnd.Capabilities()
	yesNo := func(b bool) string {
		if b {
			return "supported"
		}
		return "not supported"
	}

	fmt.Fprintln(ctx.App.Writer, renderTable(
		[]string{"Capability", "Value"},
		[][]string{
			{"alias", caps.Alias},
			{"pubkey", caps.Pubkey},
			{"network", caps.Network},
			{"pay invoice", yesNo(caps.PayInvoice)},
			{"keysend", yesNo(caps.Keysend)},
		},
		nil,
	))

	return nil
}
