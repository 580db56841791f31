package v4vkit

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/beevik/etree"
)

// podcastPrefix is the prefix feeds conventionally bind to the Podcast
// Namespace.
const podcastPrefix = "podcast"

// Strategy names the lookup that located a set of elements.
type Strategy string

const (
	StrategyNone          Strategy = "none"
	StrategyNamespace     Strategy = "namespace"
	StrategyUnprefixed    Strategy = "unprefixed"
	StrategyLiteralPrefix Strategy = "literal-prefix"
)

type lookup struct {
	strategy Strategy
	match    func(el *etree.Element, local string) bool
}

// lookups are tried in order, the first one with a match wins.
var lookups = []lookup{
	{
		strategy: StrategyNamespace,
		match: func(el *etree.Element, local string) bool {
			return el.Tag == local &&
				el.NamespaceURI() == PodcastNamespace
		},
	},
	{
		strategy: StrategyUnprefixed,
		match: func(el *etree.Element, local string) bool {
			return el.Space == "" && el.Tag == local
		},
	},
	{
		// The prefix may be unbound or bound to some other URI, in
		// which case only the literal tag name identifies the element.
		strategy: StrategyLiteralPrefix,
		match: func(el *etree.Element, local string) bool {
			return el.FullTag() == podcastPrefix+":"+local
		},
	},
}

// RawRecipient holds the attributes of a podcast:valueRecipient element
// as they appear in the document.
type RawRecipient struct {
	Name        string
	Type        string
	Address     string
	Split       string
	CustomKey   string
	CustomValue string
	Fee         string
}

// RawValueBlock holds the attributes of a podcast:value element and its
// recipients, before any validation.
type RawValueBlock struct {
	Type       string
	Method     string
	Suggested  string
	Recipients []RawRecipient

	// RecipientStrategy is the lookup that found the recipients.
	RecipientStrategy Strategy
}

// ValueBlock converts the raw attributes without checking them.
func (raw RawValueBlock) ValueBlock(scope Scope) ValueBlock {
	block := ValueBlock{
		Type:       raw.Type,
		Method:     raw.Method,
		Suggested:  raw.Suggested,
		Recipients: make([]ValueRecipient, 0, len(raw.Recipients)),
		Scope:      scope,
	}
	for _, r := range raw.Recipients {
		block.Recipients = append(block.Recipients, ValueRecipient{
			Name:        r.Name,
			Type:        RecipientType(r.Type),
			Address:     r.Address,
			Split:       r.Split,
			CustomKey:   r.CustomKey,
			CustomValue: r.CustomValue,
			Fee:         r.Fee == "true",
		})
	}

	return block
}

// Raw turns a block back into attribute bags, so blocks obtained from
// ExtractFeed can be run through ValidateBlock.
func (b ValueBlock) Raw() RawValueBlock {
	raw := RawValueBlock{
		Type:      b.Type,
		Method:    b.Method,
		Suggested: b.Suggested,
	}
	for _, r := range b.Recipients {
		fee := ""
		if r.Fee {
			fee = "true"
		}
		raw.Recipients = append(raw.Recipients, RawRecipient{
			Name:        r.Name,
			Type:        string(r.Type),
			Address:     r.Address,
			Split:       r.Split,
			CustomKey:   r.CustomKey,
			CustomValue: r.CustomValue,
			Fee:         fee,
		})
	}

	return raw
}

// Document is a parsed feed.
type Document struct {
	doc *etree.Document
}

// ParseDocument parses raw feed XML. Anything that is not well-formed XML
// is reported as a *ParseError.
func ParseDocument(data []byte) (*Document, error) {
	if looksLikeHTML(data) {
		return nil, &ParseError{Err: htmlPayloadError(data)}
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, &ParseError{Err: err}
	}
	if doc.Root() == nil {
		return nil, &ParseError{Err: ErrNoRoot}
	}
	if err := checkDocumentLevel(doc); err != nil {
		return nil, &ParseError{Err: err}
	}

	return &Document{doc: doc}, nil
}

// checkDocumentLevel rejects what etree tolerates outside the root: a
// second root element or text around it.
func checkDocumentLevel(doc *etree.Document) error {
	roots := 0
	for _, tok := range doc.Child {
		switch tok := tok.(type) {
		case *etree.Element:
			roots++
			if roots > 1 {
				return fmt.Errorf("%w: <%s>", ErrMultipleRoots,
					tok.FullTag())
			}

		case *etree.CharData:
			if strings.Trim(tok.Data, " \t\r\n\ufeff") != "" {
				return ErrTextOutsideRoot
			}
		}
	}

	return nil
}

func looksLikeHTML(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	head = bytes.ToLower(head)

	return bytes.Contains(head, []byte("<!doctype html")) ||
		bytes.Contains(head, []byte("<html"))
}

// htmlPayloadError names the page title, which is usually all a relay or
// CDN error page tells about what went wrong.
func htmlPayloadError(data []byte) error {
	page, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return ErrHTMLPayload
	}

	title := strings.TrimSpace(page.Find("title").First().Text())
	if title == "" {
		return ErrHTMLPayload
	}

	return fmt.Errorf("%w (page title %q)", ErrHTMLPayload, title)
}

func (d *Document) Root() *etree.Element {
	return d.doc.Root()
}

// Channel returns the first unprefixed channel element, or nil.
func (d *Document) Channel() *etree.Element {
	root := d.doc.Root()
	if root.Space == "" && root.Tag == "channel" {
		return root
	}

	found := descendants(root, func(el *etree.Element) bool {
		return el.Space == "" && el.Tag == "channel"
	}, nil)
	if len(found) == 0 {
		return nil
	}

	return found[0]
}

// Items returns the episode elements of the channel in document order.
func (d *Document) Items() []*etree.Element {
	channel := d.Channel()
	if channel == nil {
		return nil
	}

	return descendants(channel, isItem, isItem)
}

// HasNamespace reports whether the root declares prefix with a URI
// containing want.
func (d *Document) HasNamespace(prefix, want string) bool {
	uri := d.doc.Root().SelectAttrValue("xmlns:"+prefix, "")

	return uri != "" && strings.Contains(uri, want)
}

func isItem(el *etree.Element) bool {
	return el.Space == "" && el.Tag == "item"
}

// descendants walks the tree below root in document order and collects
// the elements matching match. Subtrees whose root satisfies prune are
// not entered.
func descendants(root *etree.Element, match,
	prune func(*etree.Element) bool) []*etree.Element {

	var out []*etree.Element
	for _, child := range root.ChildElements() {
		if match(child) {
			out = append(out, child)
		}
		if prune != nil && prune(child) {
			continue
		}
		out = append(out, descendants(child, match, prune)...)
	}

	return out
}

// findElements runs the lookup strategies in order and returns the first
// non-empty result.
func findElements(root *etree.Element, local string,
	prune func(*etree.Element) bool) ([]*etree.Element, Strategy) {

	for _, l := range lookups {
		l := l
		found := descendants(root, func(el *etree.Element) bool {
			return l.match(el, local)
		}, prune)
		if len(found) > 0 {
			return found, l.strategy
		}
	}

	return nil, StrategyNone
}

// FindValueBlocks locates the value blocks below root. For ScopeChannel
// the search stays out of item elements, so episode blocks are not
// mistaken for the channel default.
func FindValueBlocks(root *etree.Element, scope Scope) ([]RawValueBlock,
	Strategy) {

	var prune func(*etree.Element) bool
	if scope == ScopeChannel {
		prune = isItem
	}

	elements, strategy := findElements(root, "value", prune)
	blocks := make([]RawValueBlock, 0, len(elements))
	for _, el := range elements {
		blocks = append(blocks, parseValueElement(el))
	}

	return blocks, strategy
}

func parseValueElement(el *etree.Element) RawValueBlock {
	block := RawValueBlock{
		Type:      el.SelectAttrValue("type", ""),
		Method:    el.SelectAttrValue("method", ""),
		Suggested: el.SelectAttrValue("suggested", ""),
	}

	recipients, strategy := findElements(el, "valueRecipient", nil)
	block.RecipientStrategy = strategy
	for _, r := range recipients {
		block.Recipients = append(block.Recipients, RawRecipient{
			Name:        r.SelectAttrValue("name", ""),
			Type:        r.SelectAttrValue("type", ""),
			Address:     r.SelectAttrValue("address", ""),
			Split:       r.SelectAttrValue("split", ""),
			CustomKey:   r.SelectAttrValue("customKey", ""),
			CustomValue: r.SelectAttrValue("customValue", ""),
			Fee:         r.SelectAttrValue("fee", ""),
		})
	}

	return block
}
