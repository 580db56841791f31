package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/urfave/cli/v2"
	"github.com/v4vkit/v4vkit"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Validate a feed and its value blocks",
	ArgsUsage: "<feed url or path>",
	Description: `Fetch a podcast RSS feed (or read it from disk) and check
	its structure and every channel and episode podcast:value block.`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "print the report as JSON",
		},
	},
	Action: validateFeed,
}

var recipientsCommand = &cli.Command{
	Name:      "recipients",
	Usage:     "List the payable recipients of a feed",
	ArgsUsage: "<feed url or path>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "episode",
			Usage: "episode guid or title, the channel block is used when empty",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "print the recipients as JSON",
		},
	},
	Action: listRecipients,
}

func validateFeed(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	data, err := loadFeed(ctx, cfg)
	if err != nil {
		return err
	}

	report, err := v4vkit.ValidateFeed(data)
	if err != nil {
		return err
	}

	out := ctx.App.Writer
	if ctx.Bool("json") {
		if err := printJSON(out, report); err != nil {
			return err
		}
	} else {
		printReport(out, report)
	}

	if !report.IsValid {
		return fmt.Errorf("feed has errors")
	}

	return nil
}

func printReport(w io.Writer, report *v4vkit.FeedReport) {
	if report.IsValid {
		fmt.Fprintln(w, "Feed is valid")
	} else {
		fmt.Fprintln(w, "Feed has errors")
	}

	scope := "channel-level value blocks only"
	if report.Info.HasEpisodeValueBlocks {
		scope = "with episode-specific value blocks"
	}
	fmt.Fprintf(w, "Info: %d episodes, %s (lookup: %s)\n\n",
		report.Info.ItemCount, scope, report.Info.LookupStrategy)

	printList(w, "Errors", report.Errors)
	printList(w, "Warnings", report.Warnings)

	for _, block := range report.ValueBlocks {
		status := "valid"
		if !block.IsValid {
			status = "invalid"
		}

		where := "channel"
		if block.Scope == v4vkit.ScopeEpisode {
			where = fmt.Sprintf("episode %d", block.EpisodeIndex+1)
		}
		fmt.Fprintf(w, "Value Block %d (%s): %s\n", block.Index+1, where,
			status)

		printList(w, "  Errors", block.Errors)
		printList(w, "  Warnings", block.Warnings)
		fmt.Fprintln(w, recipientTable(block.Recipients))
		fmt.Fprintln(w)
	}
}

func printList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}

	fmt.Fprintf(w, "%s (%d):\n", title, len(items))
	for _, item := range items {
		fmt.Fprintf(w, "  - %s\n", item)
	}
	fmt.Fprintln(w)
}

func recipientTable(recipients []v4vkit.ValueRecipient) string {
	rows := make([][]string, 0, len(recipients))
	for _, r := range recipients {
		rows = append(rows, []string{
			r.Name, string(r.Type), r.Address, r.Split + "%",
		})
	}

	return renderTable(
		[]string{"Name", "Type", "Address", "Split"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	)
}

func listRecipients(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	_, block, err := feedBlock(ctx, cfg)
	if err != nil {
		return err
	}

	recipients := v4vkit.Recipients(*block)
	if ctx.Bool("json") {
		return printJSON(ctx.App.Writer, recipients)
	}

	suggested := "none"
	if n, ok := block.SuggestedAmount(); ok {
		suggested = strconv.FormatInt(n, 10) + " sats"
	}
	fmt.Fprintf(ctx.App.Writer, "Scope: %s, suggested: %s\n", block.Scope,
		suggested)
	fmt.Fprintln(ctx.App.Writer, recipientTable(recipients))

	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
