package v4vkit

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
)

// podcastGUIDNamespace is the UUIDv5 namespace podcast:guid values live in.
var podcastGUIDNamespace = uuid.MustParse(
	"ead4c236-bf58-58c6-a2c6-a6b28d128cb6",
)

// ErrNoRecipients is returned when a feed config names no one to pay.
var ErrNoRecipients = errors.New("feed config has no lightning " +
	"addresses or node pubkeys")

// FeedConfig describes a test feed to render.
type FeedConfig struct {
	Username string `yaml:"username"`
	RepoName string `yaml:"repo_name"`
	Email    string `yaml:"email"`
	Name     string `yaml:"name"`

	LightningAddresses []string `yaml:"lightning_addresses"`

	// LightningNames optionally labels LightningAddresses by index.
	LightningNames []string `yaml:"lightning_names"`

	NodePubkeys []string `yaml:"node_pubkeys"`

	FeedTitle       string `yaml:"feed_title"`
	FeedDescription string `yaml:"feed_description"`
	// FeedGUID prefixes the guids of episodes that do not set one.
	FeedGUID string `yaml:"feed_guid"`

	// PodcastGUID defaults to the UUIDv5 derived from FeedURL.
	PodcastGUID string `yaml:"podcast_guid"`

	// SuggestedAmount is the channel block suggestion in sats.
	SuggestedAmount int64 `yaml:"suggested_amount"`

	Episodes []EpisodeConfig `yaml:"episodes"`
}

type EpisodeConfig struct {
	Title           string `yaml:"title"`
	Description     string `yaml:"description"`
	GUID            string `yaml:"guid"`
	SuggestedAmount int64  `yaml:"suggested_amount"`
}

// BaseURL is where the feed assets are served from.
func (c FeedConfig) BaseURL() string {
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/main",
		c.Username, c.RepoName)
}

func (c FeedConfig) RepoURL() string {
	return fmt.Sprintf("https://github.com/%s/%s", c.Username, c.RepoName)
}

// FeedURL is the public URL of the rendered feed.
func (c FeedConfig) FeedURL() string {
	return c.BaseURL() + "/feed.xml"
}

// PodcastGUID derives the podcast:guid of a feed: a UUIDv5 of the feed URL
// stripped of its scheme and trailing slashes.
func PodcastGUID(feedURL string) string {
	u := feedURL
	if i := strings.Index(u, "://"); i >= 0 {
		u = u[i+3:]
	}
	u = strings.TrimRight(u, "/")

	return uuid.NewSHA1(podcastGUIDNamespace, []byte(u)).String()
}

// Recipients lists the configured recipients with even splits. Lightning
// addresses come first, then node pubkeys.
func (c FeedConfig) Recipients() []ValueRecipient {
	total := len(c.LightningAddresses) + len(c.NodePubkeys)
	splits := EvenSplits(total)

	recipients := make([]ValueRecipient, 0, total)
	for i, addr := range c.LightningAddresses {
		name := fmt.Sprintf("Wallet %d", i+1)
		if i < len(c.LightningNames) && c.LightningNames[i] != "" {
			name = c.LightningNames[i]
		}
		recipients = append(recipients, ValueRecipient{
			Name:    name,
			Type:    RecipientLightning,
			Address: addr,
		})
	}
	for i, key := range c.NodePubkeys {
		recipients = append(recipients, ValueRecipient{
			Name:    fmt.Sprintf("Node %d", i+1),
			Type:    RecipientNode,
			Address: key,
		})
	}

	for i := range recipients {
		recipients[i].Split = fmt.Sprintf("%d", splits[i])
	}

	return recipients
}

// EvenSplits returns n splits adding up to exactly 100. When 100 does not
// divide evenly the first recipients get one point more.
func EvenSplits(n int) []int {
	if n <= 0 {
		return nil
	}

	splits := make([]int, n)
	base, rest := 100/n, 100%n
	for i := range splits {
		splits[i] = base
		if i < rest {
			splits[i]++
		}
	}

	return splits
}

type renderedEpisode struct {
	Number      string
	Title       string
	Description string
	GUID        string
	PubDate     string
	Suggested   int64
}

type feedData struct {
	Cfg        FeedConfig
	GUID       string
	BaseURL    string
	RepoURL    string
	Now        string
	Suggested  int64
	Recipients []ValueRecipient
	Episodes   []renderedEpisode
}

var templateFuncs = template.FuncMap{
	"x": escapeXML,
}

var feedTemplate = template.Must(template.New("feed").Funcs(templateFuncs).
	Parse(`<?xml version="1.0" encoding="UTF-8"?>
<rss xmlns:podcast="` + PodcastNamespace + `" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd" version="2.0">
  <channel>
    <title>{{x .Cfg.FeedTitle}}</title>
    <itunes:author>{{x .Cfg.Name}}</itunes:author>
    <description>{{x .Cfg.FeedDescription}}</description>
    <link>{{x .RepoURL}}</link>
    <language>en</language>
    <generator>v4vkit</generator>
    <pubDate>{{.Now}}</pubDate>
    <lastBuildDate>{{.Now}}</lastBuildDate>
    <podcast:locked owner="{{x .Cfg.Email}}">no</podcast:locked>
    <podcast:guid>{{x .GUID}}</podcast:guid>
    <itunes:category text="Technology" />
    <itunes:category text="Education" />
    <managingEditor>{{x .Cfg.Email}}</managingEditor>
    <webMaster>{{x .Cfg.Email}}</webMaster>
    <image>
      <url>{{x .BaseURL}}/artwork.jpg</url>
      <title>{{x .Cfg.FeedTitle}}</title>
      <link>{{x .RepoURL}}</link>
      <description>{{x .Cfg.FeedTitle}} artwork</description>
    </image>
    <podcast:medium>podcast</podcast:medium>
    <podcast:person href="{{x .RepoURL}}" img="{{x .BaseURL}}/host.jpg" group="hosts" role="host">{{x .Cfg.Name}}</podcast:person>
    <podcast:value type="lightning" method="split" suggested="{{.Suggested}}">
{{- range .Recipients}}
      <podcast:valueRecipient name="{{x .Name}}" type="{{x (print .Type)}}" address="{{x .Address}}" split="{{.Split}}" />
{{- end}}
    </podcast:value>
{{- range .Episodes}}
    <item>
      <title>{{x .Title}}</title>
      <description>{{x .Description}}</description>
      <pubDate>{{.PubDate}}</pubDate>
      <guid isPermaLink="false">{{x .GUID}}</guid>
      <podcast:transcript url="{{x $.BaseURL}}/transcripts/episode-{{.Number}}.srt" type="text/plain" />
      <itunes:image href="{{x $.BaseURL}}/images/episode-{{.Number}}.jpg" />
      <enclosure url="{{x $.BaseURL}}/episodes/episode-{{.Number}}.mp3" length="15000000" type="audio/mpeg" />
      <itunes:duration>00:25:00</itunes:duration>
      <podcast:value type="lightning" method="split" suggested="{{.Suggested}}">
{{- range $.Recipients}}
        <podcast:valueRecipient name="{{x .Name}}" type="{{x (print .Type)}}" address="{{x .Address}}" split="{{.Split}}" />
{{- end}}
      </podcast:value>
    </item>
{{- end}}
  </channel>
</rss>
`))

// RenderFeed renders cfg as an RSS feed whose value blocks pass
// ValidateFeed. Episode dates start at now and advance by a week.
func RenderFeed(cfg FeedConfig, now time.Time) ([]byte, error) {
	recipients := cfg.Recipients()
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	suggested := cfg.SuggestedAmount
	if suggested <= 0 {
		suggested = 1000
	}

	guid := cfg.PodcastGUID
	if guid == "" {
		guid = PodcastGUID(cfg.FeedURL())
	}

	data := feedData{
		Cfg:        cfg,
		GUID:       guid,
		BaseURL:    cfg.BaseURL(),
		RepoURL:    cfg.RepoURL(),
		Now:        now.UTC().Format(time.RFC1123Z),
		Suggested:  suggested,
		Recipients: recipients,
	}

	for i, ep := range cfg.Episodes {
		epSuggested := ep.SuggestedAmount
		if epSuggested <= 0 {
			epSuggested = suggested
		}

		number := fmt.Sprintf("%03d", i+1)
		epGUID := ep.GUID
		if epGUID == "" {
			epGUID = "episode-" + number
			if cfg.FeedGUID != "" {
				epGUID = cfg.FeedGUID + "-" + number
			}
		}

		date := now.Add(time.Duration(i) * 7 * 24 * time.Hour)
		data.Episodes = append(data.Episodes, renderedEpisode{
			Number:      number,
			Title:       ep.Title,
			Description: ep.Description,
			GUID:        epGUID,
			PubDate:     date.UTC().Format(time.RFC1123Z),
			Suggested:   epSuggested,
		})
	}

	var buf bytes.Buffer
	if err := feedTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render feed: %w", err)
	}

	return buf.Bytes(), nil
}

var readmeTemplate = template.Must(template.New("readme").Parse(
	`# {{.Cfg.FeedTitle}}

{{.Cfg.FeedDescription}}

## Feed URL
{{.Cfg.FeedURL}}

## Episodes
{{range .Cfg.Episodes}}- {{.Title}}
{{end}}
## Value Blocks
Every episode carries a podcast:value block of type lightning, method
split, shared evenly among these recipients:

{{range .Recipients}}- {{.Name}} ({{.Type}}): {{.Address}}, {{.Split}}%
{{end}}
## Regenerating
Edit the feed section of the config file and run:

    v4vkit render --config config.yaml

then validate the result with:

    v4vkit validate feed.xml
`))

// RenderReadme renders the companion README for a generated feed.
func RenderReadme(cfg FeedConfig) ([]byte, error) {
	var buf bytes.Buffer
	err := readmeTemplate.Execute(&buf, struct {
		Cfg        FeedConfig
		Recipients []ValueRecipient
	}{cfg, cfg.Recipients()})
	if err != nil {
		return nil, fmt.Errorf("render readme: %w", err)
	}

	return buf.Bytes(), nil
}

func escapeXML(s string) string {
	var b strings.Builder
	// EscapeText only fails if the writer does.
	_ = xml.EscapeText(&b, []byte(s))

	return b.String()
}
