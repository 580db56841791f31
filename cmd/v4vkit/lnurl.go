package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
	"github.com/v4vkit/v4vkit"
)

var lnurlCommand = &cli.Command{
	Name:  "lnurl",
	Usage: "Inspect Lightning addresses and LNURLs",
	Subcommands: []*cli.Command{
		{
			Name:      "encode",
			Usage:     "Encode a Lightning address or URL as a bech32 LNURL",
			ArgsUsage: "<address or url>",
			Action:    encodeLNURL,
		},
		{
			Name:      "resolve",
			Usage:     "Fetch the LNURL-pay parameters of a pay code",
			ArgsUsage: "<address, lnurl or lnurlp url>",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "notls",
					Usage: "set to true to use http instead of https",
				},
			},
			Action: resolveLNURL,
		},
		{
			Name:      "invoice",
			Usage:     "Request an invoice from a pay code without paying it",
			ArgsUsage: "<address, lnurl or lnurlp url>",
			Flags: []cli.Flag{
				&cli.Int64Flag{
					Name:  "amt",
					Usage: "The amt of millisats to request",
					Value: 10000,
				},
				&cli.StringFlag{
					Name:  "comment",
					Usage: "comment sent along, if the service allows it",
				},
				&cli.BoolFlag{
					Name:  "notls",
					Usage: "set to true to use http instead of https",
				},
			},
			Action: requestInvoice,
		},
	},
}

func encodeLNURL(ctx *cli.Context) error {
	target := ctx.Args().First()
	if target == "" {
		return fmt.Errorf("missing address or url argument")
	}

	url := target
	if !strings.HasPrefix(target, "http") {
		var err error
		url, err = v4vkit.LightningAddressURL(target, false)
		if err != nil {
			return err
		}
	}

	code, err := v4vkit.EncodeLNURL(url)
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.App.Writer, "%s\n%s\nlightning:%s\n", url, code, code)

	return nil
}

func resolveLNURL(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	payURL, err := v4vkit.ResolvePayURL(ctx.Args().First(),
		ctx.Bool("notls"))
	if err != nil {
		return err
	}

	fetcher, err := getFetcher(cfg)
	if err != nil {
		return err
	}

	client := v4vkit.NewLNURLPayClient(fetcher.Client())
	params, err := client.FetchPayParams(ctx.Context, payURL)
	if err != nil {
		return err
	}

	fmt.Fprintln(ctx.App.Writer, renderTable(
		[]string{"Field", "Value"},
		[][]string{
			{"url", payURL},
			{"callback", params.Callback},
			{"min sendable (msat)", fmt.Sprint(params.MinSendable)},
			{"max sendable (msat)", fmt.Sprint(params.MaxSendable)},
			{"comment allowed", fmt.Sprint(params.CommentAllowed)},
			{"description", params.Description()},
		},
		nil,
	))

	return nil
}

func requestInvoice(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	fetcher, err := getFetcher(cfg)
	if err != nil {
		return err
	}

	client := v4vkit.NewLNURLPayClient(fetcher.Client())
	invoice, err := client.InvoiceFor(
		ctx.Context, ctx.Args().First(), ctx.Int64("amt"),
		ctx.String("comment"), ctx.Bool("notls"),
	)
	if err != nil {
		return err
	}

	fmt.Fprintln(ctx.App.Writer, invoice)

	return nil
}
