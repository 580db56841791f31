package v4vkit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const recipientsXML = `
      <podcast:valueRecipient name="Alice" type="lightning" address="alice@getalby.com" split="50" />
      <podcast:valueRecipient name="Bob" type="node" address="032870511bfa0309bab3ca1832ead69eed848a4abddbc4d50e55bb2157f9525e51" split="50" customKey="696969" customValue="abc" fee="true" />`

func TestFindValueBlocksStrategies(t *testing.T) {
	tests := []struct {
		name     string
		feed     string
		strategy Strategy
	}{
		{
			name: "bound to the namespace uri",
			feed: `<rss xmlns:podcast="https://podcastindex.org/namespace/1.0"><channel>
    <podcast:value type="lightning" method="split" suggested="100">` +
				recipientsXML + `
    </podcast:value></channel></rss>`,
			strategy: StrategyNamespace,
		},
		{
			name: "other prefix bound to the namespace uri",
			feed: `<rss xmlns:pc="https://podcastindex.org/namespace/1.0"><channel>
    <pc:value type="lightning" method="split" suggested="100">
      <pc:valueRecipient name="Alice" type="lightning" address="alice@getalby.com" split="50" />
      <pc:valueRecipient name="Bob" type="node" address="032870511bfa0309bab3ca1832ead69eed848a4abddbc4d50e55bb2157f9525e51" split="50" />
    </pc:value></channel></rss>`,
			strategy: StrategyNamespace,
		},
		{
			name: "unprefixed",
			feed: `<rss><channel>
    <value type="lightning" method="split" suggested="100">
      <valueRecipient name="Alice" type="lightning" address="alice@getalby.com" split="50" />
      <valueRecipient name="Bob" type="node" address="032870511bfa0309bab3ca1832ead69eed848a4abddbc4d50e55bb2157f9525e51" split="50" />
    </value></channel></rss>`,
			strategy: StrategyUnprefixed,
		},
		{
			name: "prefix bound to another uri",
			feed: `<rss xmlns:podcast="https://example.com/not-podcasting"><channel>
    <podcast:value type="lightning" method="split" suggested="100">` +
				recipientsXML + `
    </podcast:value></channel></rss>`,
			strategy: StrategyLiteralPrefix,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			doc, err := ParseDocument([]byte(test.feed))
			require.NoError(t, err)

			blocks, strategy := FindValueBlocks(doc.Channel(),
				ScopeChannel)
			require.Equal(t, test.strategy, strategy)
			require.Len(t, blocks, 1)

			block := blocks[0]
			require.Equal(t, "lightning", block.Type)
			require.Equal(t, "split", block.Method)
			require.Equal(t, "100", block.Suggested)
			require.Len(t, block.Recipients, 2)
			require.Equal(t, "Alice", block.Recipients[0].Name)
			require.Equal(t, "alice@getalby.com",
				block.Recipients[0].Address)
			require.Equal(t, "node", block.Recipients[1].Type)
		})
	}
}

func TestFindValueBlocksNone(t *testing.T) {
	doc, err := ParseDocument([]byte(`<rss><channel><title>x</title>` +
		`</channel></rss>`))
	require.NoError(t, err)

	blocks, strategy := FindValueBlocks(doc.Channel(), ScopeChannel)
	require.Empty(t, blocks)
	require.Equal(t, StrategyNone, strategy)
}

func TestChannelScopeSkipsItems(t *testing.T) {
	feed := `<rss xmlns:podcast="https://podcastindex.org/namespace/1.0"><channel>
  <item>
    <podcast:value type="lightning" method="split" suggested="5">` +
		recipientsXML + `
    </podcast:value>
  </item>
</channel></rss>`

	doc, err := ParseDocument([]byte(feed))
	require.NoError(t, err)

	blocks, strategy := FindValueBlocks(doc.Channel(), ScopeChannel)
	require.Empty(t, blocks)
	require.Equal(t, StrategyNone, strategy)

	items := doc.Items()
	require.Len(t, items, 1)

	blocks, _ = FindValueBlocks(items[0], ScopeEpisode)
	require.Len(t, blocks, 1)
	require.Equal(t, "5", blocks[0].Suggested)
}

func TestRawValueBlockConversion(t *testing.T) {
	feed := `<rss xmlns:podcast="https://podcastindex.org/namespace/1.0"><channel>
    <podcast:value type="lightning" method="split" suggested="100">` +
		recipientsXML + `
    </podcast:value></channel></rss>`

	doc, err := ParseDocument([]byte(feed))
	require.NoError(t, err)

	blocks, _ := FindValueBlocks(doc.Channel(), ScopeChannel)
	require.Len(t, blocks, 1)

	block := blocks[0].ValueBlock(ScopeChannel)
	require.Equal(t, ScopeChannel, block.Scope)
	require.Equal(t, RecipientNode, block.Recipients[1].Type)
	require.True(t, block.Recipients[1].Fee)
	require.False(t, block.Recipients[0].Fee)
	require.Equal(t, "696969", block.Recipients[1].CustomKey)
	require.Equal(t, 50, block.Recipients[1].SplitValue())

	amount, ok := block.SuggestedAmount()
	require.True(t, ok)
	require.EqualValues(t, 100, amount)

	raw := block.Raw()
	require.Equal(t, blocks[0].Recipients, raw.Recipients)
}

func TestParseDocumentErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{
			name:  "truncated tag",
			input: `<rss><channel><title>Broken</title`,
		},
		{
			name:  "unclosed element",
			input: `<rss><channel><title>Broken</title>`,
		},
		{
			name:  "empty",
			input: ``,
			want:  ErrNoRoot,
		},
		{
			name:  "second root element",
			input: `<rss><channel/></rss><rss/>`,
			want:  ErrMultipleRoots,
		},
		{
			name: "text after the root",
			input: `<rss><channel><title>t</title>` +
				`<description>d</description><link>l</link>` +
				`</channel></rss>garbage`,
			want: ErrTextOutsideRoot,
		},
		{
			name:  "html page",
			input: `<!DOCTYPE html><html><body>Blocked</body></html>`,
			want:  ErrHTMLPayload,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			doc, err := ParseDocument([]byte(test.input))
			require.Nil(t, doc)
			require.Error(t, err)

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr))
			require.Contains(t, err.Error(), "XML parsing failed")

			if test.want != nil {
				require.ErrorIs(t, err, test.want)
			}
		})
	}
}

func TestParseDocumentDocumentLevel(t *testing.T) {
	doc, err := ParseDocument([]byte("<?xml version=\"1.0\"?>\n" +
		"<!-- generated -->\n<rss><channel/></rss>\n\n"))
	require.NoError(t, err)
	require.Equal(t, "rss", doc.Root().Tag)

	report, err := ValidateFeed([]byte(`<rss><channel/></rss><rss/>`))
	require.Nil(t, report)
	require.ErrorIs(t, err, ErrMultipleRoots)
}

func TestParseDocumentHTMLTitle(t *testing.T) {
	_, err := ParseDocument([]byte(`<!DOCTYPE html>
<html><head><title> 403 Forbidden </title></head><body></body></html>`))

	require.ErrorIs(t, err, ErrHTMLPayload)
	require.Contains(t, err.Error(), `page title "403 Forbidden"`)
}

func TestSuggestedAmount(t *testing.T) {
	for suggested, want := range map[string]bool{
		"1000": true,
		" 0 ":  true,
		"":     false,
		"-5":   false,
		"1.5":  false,
		"lots": false,
	} {
		_, ok := ValueBlock{Suggested: suggested}.SuggestedAmount()
		require.Equal(t, want, ok, "suggested %q", suggested)
	}
}
