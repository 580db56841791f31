package v4vkit

import (
	"strconv"
	"strings"
)

// PodcastNamespace is the canonical Podcast Namespace URI.
const PodcastNamespace = "https://podcastindex.org/namespace/1.0"

const (
	// BlockTypeLightning is the only value block type we can pay.
	BlockTypeLightning = "lightning"

	// MethodSplit divides a payment among recipients by split weight.
	MethodSplit = "split"
)

type RecipientType string

const (
	// RecipientLightning is a Lightning Address paid via LNURL-pay.
	RecipientLightning RecipientType = "lightning"

	// RecipientNode is a node public key paid via keysend.
	RecipientNode RecipientType = "node"
)

type Scope string

const (
	ScopeChannel Scope = "channel"
	ScopeEpisode Scope = "episode"
)

// ValueBlock is a podcast:value element that passed through the parser.
type ValueBlock struct {
	// Type should be "lightning".
	Type string `json:"type"`

	// Method should be "split".
	Method string `json:"method"`

	// Suggested is the raw suggested attribute, in sats.
	Suggested string `json:"suggested,omitempty"`

	// Recipients in document order.
	Recipients []ValueRecipient `json:"recipients"`

	Scope Scope `json:"scope"`
}

// SuggestedAmount returns the suggested amount in sats and whether it was
// a usable non-negative integer.
func (b ValueBlock) SuggestedAmount() (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(b.Suggested), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}

	return n, true
}

type ValueRecipient struct {
	Name    string        `json:"name"`
	Type    RecipientType `json:"type"`
	Address string        `json:"address"`

	// Split is the raw split attribute. Use SplitValue for arithmetic.
	Split string `json:"split"`

	// CustomKey and CustomValue are forwarded as a TLV record on keysend
	// payments when both are set.
	CustomKey   string `json:"customKey,omitempty"`
	CustomValue string `json:"customValue,omitempty"`

	Fee bool `json:"fee,omitempty"`
}

// SplitValue returns the split weight. Missing or malformed splits count
// as zero.
func (r ValueRecipient) SplitValue() int {
	n, err := strconv.Atoi(strings.TrimSpace(r.Split))
	if err != nil || n < 0 {
		return 0
	}

	return n
}

// BlockReport is the outcome of validating a single value block.
type BlockReport struct {
	Index int   `json:"index"`
	Scope Scope `json:"scope"`

	// EpisodeIndex is the zero-based item index for episode blocks and -1
	// for the channel block.
	EpisodeIndex int `json:"episodeIndex"`

	IsValid    bool             `json:"isValid"`
	Errors     []string         `json:"errors"`
	Warnings   []string         `json:"warnings"`
	Recipients []ValueRecipient `json:"recipients"`

	Block ValueBlock `json:"-"`
}

type EpisodeReport struct {
	Index int    `json:"index"`
	Title string `json:"title,omitempty"`
	GUID  string `json:"guid,omitempty"`

	// HasValueBlock is informational, the block itself is reported in
	// FeedReport.ValueBlocks.
	HasValueBlock bool `json:"hasValueBlock"`

	MissingElements []string `json:"missingElements,omitempty"`
}

type FeedInfo struct {
	ItemCount             int      `json:"itemCount"`
	HasChannelValueBlock  bool     `json:"hasChannelValueBlock"`
	HasEpisodeValueBlocks bool     `json:"hasEpisodeValueBlocks"`
	LookupStrategy        Strategy `json:"lookupStrategy"`
}

// FeedReport is the outcome of validating a whole feed document.
type FeedReport struct {
	IsValid     bool            `json:"isValid"`
	Errors      []string        `json:"errors"`
	Warnings    []string        `json:"warnings"`
	Info        FeedInfo        `json:"info"`
	ValueBlocks []BlockReport   `json:"valueBlocks"`
	Episodes    []EpisodeReport `json:"episodes"`
}
