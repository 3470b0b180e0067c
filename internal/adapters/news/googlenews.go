package news

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"finresearch/pkg/errors"
)

const defaultGoogleNewsURL = "https://news.google.com/rss/search"

// GoogleNews reads the public Google News RSS search feed
type GoogleNews struct {
	cfg    Config
	client *http.Client
	parser *gofeed.Parser
}

// NewGoogleNews creates a Google News RSS client. No API key is needed.
func NewGoogleNews(cfg Config, client *http.Client) *GoogleNews {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGoogleNewsURL
	}
	return &GoogleNews{cfg: cfg, client: client, parser: gofeed.NewParser()}
}

func (g *GoogleNews) Name() string { return ProviderGoogleNews }

// Search fetches the feed for query. Items come back in feed order.
func (g *GoogleNews) Search(ctx context.Context, query string, limit int) ([]Article, error) {
	lang := strings.ToLower(g.cfg.Language)
	country := strings.ToUpper(g.cfg.Country)

	params := url.Values{}
	params.Set("q", query)
	params.Set("hl", lang+"-"+country)
	params.Set("gl", country)
	params.Set("ceid", country+":"+lang)

	resp, err := get(ctx, g.client, ProviderGoogleNews, g.cfg.BaseURL+"?"+params.Encode(),
		"application/rss+xml, application/xml;q=0.9, text/xml;q=0.8")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	feed, err := g.parser.Parse(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrExternal, "googlenews: parse feed: %v", err)
	}

	out := make([]Article, 0, len(feed.Items))
	for _, it := range feed.Items {
		if limit > 0 && len(out) >= limit {
			break
		}
		title, source := splitPublisher(it.Title)
		if title == "" {
			continue
		}
		a := Article{
			Title:   title,
			Snippet: plainText(it.Description),
			Link:    strings.TrimSpace(it.Link),
			Source:  source,
		}
		if it.PublishedParsed != nil {
			a.PublishedAt = it.PublishedParsed.UTC()
		} else if it.UpdatedParsed != nil {
			a.PublishedAt = it.UpdatedParsed.UTC()
		}
		// the description usually repeats the title followed by the publisher
		if a.Snippet == title || strings.HasPrefix(a.Snippet, title) {
			a.Snippet = ""
		}
		out = append(out, a)
	}
	return out, nil
}

// splitPublisher turns "Headline - Publisher" into its two parts
func splitPublisher(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	i := strings.LastIndex(raw, " - ")
	if i <= 0 {
		return raw, ""
	}
	return strings.TrimSpace(raw[:i]), strings.TrimSpace(raw[i+3:])
}

// plainText strips the HTML Google wraps descriptions in
func plainText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
