package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/v4vkit/v4vkit"
)

const nodePubkey = "032870511bfa0309bab3ca1832ead69eed848a4abddbc4d50e55bb2157f9525e51"

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:podcast="https://podcastindex.org/namespace/1.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
  <channel>
    <title>CLI Feed</title>
    <description>A feed</description>
    <link>https://example.com</link>
    <podcast:value type="lightning" method="split" suggested="1000">
      <podcast:valueRecipient name="Node A" type="node" address="` + nodePubkey + `" split="50" />
      <podcast:valueRecipient name="Node B" type="node" address="02` + nodePubkey[2:] + `" split="50" customKey="696969" customValue="abc" />
    </podcast:value>
    <item>
      <title>Episode 1</title>
      <description>First</description>
      <pubDate>Mon, 05 Feb 2024 12:00:00 +0000</pubDate>
      <guid>ep-1</guid>
      <podcast:value type="lightning" method="split" suggested="500">
        <podcast:valueRecipient name="Guest" type="lightning" address="guest@example.com" split="100" />
      </podcast:value>
    </item>
  </channel>
</rss>`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out

	err := app.Run(append([]string{"v4vkit"}, args...))

	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	feed := writeFile(t, "feed.xml", testFeed)

	out, err := runCLI(t, "validate", feed)
	require.NoError(t, err)
	require.Contains(t, out, "Feed is valid")
	require.Contains(t, out, "Value Block 1 (channel): valid")
	require.Contains(t, out, "Value Block 2 (episode 1): valid")
	require.Contains(t, out, "guest@example.com")

	out, err = runCLI(t, "validate", "--json", feed)
	require.NoError(t, err)

	var report v4vkit.FeedReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.True(t, report.IsValid)
	require.Len(t, report.ValueBlocks, 2)
}

func TestValidateCommandInvalid(t *testing.T) {
	broken := strings.Replace(testFeed, `type="lightning" method="split"`,
		`type="bitcoin" method="split"`, 1)
	feed := writeFile(t, "feed.xml", broken)

	out, err := runCLI(t, "validate", feed)
	require.Error(t, err)
	require.Contains(t, out, "Feed has errors")
	require.Contains(t, out, "Value block type should be 'lightning'")

	_, err = runCLI(t, "validate", writeFile(t, "bad.xml", "<rss"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "XML parsing failed")

	_, err = runCLI(t, "validate")
	require.Error(t, err)
}

func TestRecipientsCommand(t *testing.T) {
	feed := writeFile(t, "feed.xml", testFeed)

	out, err := runCLI(t, "recipients", feed)
	require.NoError(t, err)
	require.Contains(t, out, "Scope: channel, suggested: 1000 sats")
	require.Contains(t, out, "Node A")

	out, err = runCLI(t, "recipients", "--episode", "ep-1", "--json", feed)
	require.NoError(t, err)

	var recipients []v4vkit.ValueRecipient
	require.NoError(t, json.Unmarshal([]byte(out), &recipients))
	require.Len(t, recipients, 1)
	require.Equal(t, "Guest", recipients[0].Name)

	_, err = runCLI(t, "recipients", "--episode", "nope", feed)
	require.Error(t, err)
}

func TestPayCommandDryRun(t *testing.T) {
	feed := writeFile(t, "feed.xml", testFeed)

	out, err := runCLI(t, "pay", "--dry-run", "--amt", "10", feed)
	require.NoError(t, err)
	require.Contains(t, out, "Node A")
	require.Contains(t, out, "Node B")
	require.Contains(t, out, "dry run")

	_, err = runCLI(t, "pay", "--dry-run", "--amt", "0", feed)
	require.Error(t, err)
}

func TestPayCommandRefusesInvalidBlock(t *testing.T) {
	broken := strings.Replace(testFeed, `method="split" suggested="1000"`,
		`method="single" suggested="1000"`, 1)
	feed := writeFile(t, "feed.xml", broken)

	_, err := runCLI(t, "pay", "--dry-run", feed)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Value block method should be 'split'")

	out, err := runCLI(t, "pay", "--dry-run", "--force", feed)
	require.NoError(t, err)
	require.Contains(t, out, "dry run")
}

func TestRenderCommand(t *testing.T) {
	cfgPath := writeFile(t, "config.yaml", `
feed:
  username: ChadFarrow
  repo_name: lnurl-test-feed
  email: chad.farrow@gmail.com
  name: Chad
  lightning_addresses:
    - chadf@getalby.com
    - chadf@btcpay.podtards.com
  node_pubkeys:
    - "`+nodePubkey+`"
  feed_title: LNURL Testing Podcast
  feed_description: A test podcast
  episodes:
    - title: LNURL Testing Episode
      description: Testing
      guid: lnurl-test-001
`)
	outDir := filepath.Join(t.TempDir(), "site")

	out, err := runCLI(t, "--config", cfgPath, "render", "--out", outDir)
	require.NoError(t, err)
	require.Contains(t, out, "Episodes: 1, recipients: 3")

	feed, err := os.ReadFile(filepath.Join(outDir, "feed.xml"))
	require.NoError(t, err)

	report, err := v4vkit.ValidateFeed(feed)
	require.NoError(t, err)
	require.True(t, report.IsValid)
	require.Empty(t, report.Warnings)

	readme, err := os.ReadFile(filepath.Join(outDir, "README.md"))
	require.NoError(t, err)
	require.Contains(t, string(readme), "# LNURL Testing Podcast")
}

func TestLNURLEncodeCommand(t *testing.T) {
	out, err := runCLI(t, "lnurl", "encode", "chadf@getalby.com")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "https://getalby.com/.well-known/lnurlp/chadf",
		lines[0])
	require.True(t, strings.HasPrefix(lines[1], "LNURL1"))
	require.Equal(t, "lightning:"+lines[1], lines[2])
}

func TestRenderTable(t *testing.T) {
	out := renderTable(
		[]string{"Name", "Sats"},
		[][]string{{"Alice", "10"}, {"Bob"}},
		[]columnAlignment{alignLeft, alignRight},
	)

	require.Contains(t, out, "Name")
	require.Contains(t, out, "Alice")
	require.Contains(t, out, "Bob")
	require.Empty(t, renderTable(nil, nil, nil))
}

func TestIsTerminal(t *testing.T) {
	require.False(t, isTerminal(&bytes.Buffer{}))

	f, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
	require.NoError(t, err)
	defer f.Close()

	require.False(t, isTerminal(f))
}
