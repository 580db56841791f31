package v4vkit

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

var (
	requiredChannelElements = []string{"title", "description", "link"}
	requiredItemElements    = []string{
		"title", "description", "pubDate", "guid",
	}
)

// ValidateFeed parses and validates a feed. Malformed input yields a
// *ParseError and no report.
func ValidateFeed(data []byte) (*FeedReport, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}

	return ValidateDocument(doc), nil
}

// ValidateDocument runs the feed shape checks, then validates the channel
// value block and every episode value block in document order.
func ValidateDocument(doc *Document) *FeedReport {
	report := &FeedReport{
		IsValid:     true,
		Errors:      []string{},
		Warnings:    []string{},
		ValueBlocks: []BlockReport{},
		Episodes:    []EpisodeReport{},
		Info: FeedInfo{
			LookupStrategy: StrategyNone,
		},
	}

	channel := doc.Channel()
	if channel == nil {
		report.fail("Missing <channel> element")
		return report
	}

	for _, name := range requiredChannelElements {
		if childElement(channel, name) == nil {
			report.fail("Missing required element: <%s>", name)
		}
	}

	if !doc.HasNamespace("podcast", "podcastindex.org") {
		report.warn("Missing podcast namespace (xmlns:podcast)")
	}
	if !doc.HasNamespace("itunes", "itunes.com") {
		report.warn("Missing iTunes namespace (xmlns:itunes)")
	}

	channelBlocks, strategy := FindValueBlocks(channel, ScopeChannel)
	if len(channelBlocks) > 0 {
		report.Info.HasChannelValueBlock = true
		report.Info.LookupStrategy = strategy

		if len(channelBlocks) > 1 {
			report.warn("Multiple channel-level value blocks found, " +
				"using the first")
		}
		report.addBlock(channelBlocks[0], ScopeChannel, -1)
	}

	items := doc.Items()
	report.Info.ItemCount = len(items)
	if len(items) == 0 {
		report.warn("No episodes found")
	}

	for i, item := range items {
		episode := EpisodeReport{
			Index: i,
			Title: childText(item, "title"),
			GUID:  childText(item, "guid"),
		}

		for _, name := range requiredItemElements {
			if childElement(item, name) == nil {
				report.warn("Episode %d: Missing %s", i+1, name)
				episode.MissingElements = append(
					episode.MissingElements, name,
				)
			}
		}

		blocks, strategy := FindValueBlocks(item, ScopeEpisode)
		if len(blocks) > 0 {
			episode.HasValueBlock = true
			report.Info.HasEpisodeValueBlocks = true
			if report.Info.LookupStrategy == StrategyNone {
				report.Info.LookupStrategy = strategy
			}
			report.addBlock(blocks[0], ScopeEpisode, i)
		}

		report.Episodes = append(report.Episodes, episode)
	}

	if len(report.ValueBlocks) == 0 {
		report.warn("No <podcast:value> blocks found")
	}

	return report
}

func (r *FeedReport) addBlock(raw RawValueBlock, scope Scope,
	episodeIndex int) {

	block := ValidateBlock(raw)
	block.Index = len(r.ValueBlocks)
	block.Scope = scope
	block.Block.Scope = scope
	block.EpisodeIndex = episodeIndex

	if !block.IsValid {
		r.IsValid = false
	}

	r.ValueBlocks = append(r.ValueBlocks, block)
}

func (r *FeedReport) fail(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.IsValid = false
}

func (r *FeedReport) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// childElement returns the first unprefixed direct child named tag.
// Prefixed lookalikes such as itunes:title do not count.
func childElement(el *etree.Element, tag string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Space == "" && child.Tag == tag {
			return child
		}
	}

	return nil
}

func childText(el *etree.Element, tag string) string {
	child := childElement(el, tag)
	if child == nil {
		return ""
	}

	return strings.TrimSpace(child.Text())
}

// ErrorReport turns a parse or fetch failure into a report holding the
// single top-level error, for callers that always want a report.
func ErrorReport(err error) *FeedReport {
	return &FeedReport{
		IsValid:     false,
		Errors:      []string{err.Error()},
		Warnings:    []string{},
		ValueBlocks: []BlockReport{},
		Episodes:    []EpisodeReport{},
		Info: FeedInfo{
			LookupStrategy: StrategyNone,
		},
	}
}
