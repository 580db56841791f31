package v4vkit

import (
	"errors"
	"math/bits"
)

// ErrNoChannel is returned when a feed has no channel element to extract
// value blocks from.
var ErrNoChannel = errors.New("feed has no channel element")

type Episode struct {
	Index int
	Title string
	GUID  string

	// Value is the episode-level block, nil when the episode relies on
	// the channel default.
	Value *ValueBlock
}

// Feed is the unvalidated value-block view of a document.
type Feed struct {
	Title    string
	Channel  *ValueBlock
	Episodes []Episode
}

// ExtractFeed collects the channel block and each episode block without
// validating them.
func ExtractFeed(doc *Document) (*Feed, error) {
	channel := doc.Channel()
	if channel == nil {
		return nil, ErrNoChannel
	}

	feed := &Feed{
		Title: childText(channel, "title"),
	}

	if blocks, _ := FindValueBlocks(channel, ScopeChannel); len(blocks) > 0 {
		block := blocks[0].ValueBlock(ScopeChannel)
		feed.Channel = &block
	}

	for i, item := range doc.Items() {
		episode := Episode{
			Index: i,
			Title: childText(item, "title"),
			GUID:  childText(item, "guid"),
		}

		blocks, _ := FindValueBlocks(item, ScopeEpisode)
		if len(blocks) > 0 {
			block := blocks[0].ValueBlock(ScopeEpisode)
			episode.Value = &block
		}

		feed.Episodes = append(feed.Episodes, episode)
	}

	return feed, nil
}

// Episode looks an episode up by guid, falling back to an exact title
// match.
func (f *Feed) Episode(id string) (*Episode, bool) {
	for i := range f.Episodes {
		if f.Episodes[i].GUID == id {
			return &f.Episodes[i], true
		}
	}
	for i := range f.Episodes {
		if f.Episodes[i].Title == id {
			return &f.Episodes[i], true
		}
	}

	return nil, false
}

// BlockFor returns the block that applies to the given episode, or the
// channel block when id is empty.
func (f *Feed) BlockFor(id string) (*ValueBlock, error) {
	if id == "" {
		return f.Channel, nil
	}

	episode, ok := f.Episode(id)
	if !ok {
		return nil, errors.New("episode " + id + " not found")
	}

	return EffectiveBlock(f.Channel, episode.Value), nil
}

// EffectiveBlock applies Podcast Namespace precedence: an episode block
// overrides the channel block.
func EffectiveBlock(channel, episode *ValueBlock) *ValueBlock {
	if episode != nil {
		return episode
	}

	return channel
}

// Recipients projects a block onto its payable recipients. No validation
// takes place here.
func Recipients(block ValueBlock) []ValueRecipient {
	out := make([]ValueRecipient, len(block.Recipients))
	copy(out, block.Recipients)

	return out
}

// SplitAmounts divides totalMsat among recipients. Fee recipients take
// their split as a percentage of the total first, the rest is shared by
// the remaining recipients in proportion to their split weights, which
// need not add up to 100. Rounding leftovers go to the first weighted
// recipients so the amounts always add up.
func SplitAmounts(totalMsat int64, recipients []ValueRecipient) []int64 {
	amounts := make([]int64, len(recipients))
	if totalMsat <= 0 {
		return amounts
	}

	remaining := uint64(totalMsat)
	for i, r := range recipients {
		if !r.Fee {
			continue
		}

		percent := uint64(r.SplitValue())
		if percent > 100 {
			percent = 100
		}
		fee := mulDiv(uint64(totalMsat), percent, 100)
		if fee > remaining {
			fee = remaining
		}
		amounts[i] = int64(fee)
		remaining -= fee
	}

	weights := splitWeights(recipients)
	weight, ok := sumWeights(weights)
	for !ok {
		// Halve every weight until the total fits, the proportions
		// survive up to rounding.
		for i := range weights {
			weights[i] >>= 1
		}
		weight, ok = sumWeights(weights)
	}
	if weight == 0 {
		return amounts
	}

	var distributed uint64
	for i, r := range recipients {
		if r.Fee {
			continue
		}
		share := mulDiv(remaining, weights[i], weight)
		amounts[i] = int64(share)
		distributed += share
	}

	leftover := remaining - distributed
	for i, r := range recipients {
		if leftover == 0 {
			break
		}
		if r.Fee || weights[i] == 0 {
			continue
		}
		amounts[i]++
		leftover--
	}

	return amounts
}

// splitWeights returns the split weight of every non-fee recipient, fee
// recipients weigh zero.
func splitWeights(recipients []ValueRecipient) []uint64 {
	weights := make([]uint64, len(recipients))
	for i, r := range recipients {
		if !r.Fee {
			weights[i] = uint64(r.SplitValue())
		}
	}

	return weights
}

// sumWeights adds up weights and reports false if the sum overflows.
func sumWeights(weights []uint64) (uint64, bool) {
	var sum, carry uint64
	for _, w := range weights {
		sum, carry = bits.Add64(sum, w, 0)
		if carry != 0 {
			return 0, false
		}
	}

	return sum, true
}

// mulDiv returns a*b/c using a 128 bit intermediate product. b must not
// exceed c, which keeps the quotient within a.
func mulDiv(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, _ := bits.Div64(hi, lo, c)

	return q
}
