package crawler

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/lightartw/textanalyze/config"
)

// paragraphs of this many runes or fewer are navigation crumbs, not body text
const minParagraphRunes = 20

var strippedTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Header:   true,
	atom.Iframe:   true,
	atom.Noscript: true,
}

// Fetcher turns a page URL into plain article text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type Crawler struct {
	userAgent string
	client    *http.Client
}

func NewCrawler(cfg config.CrawlerConfig) *Crawler {
	return &Crawler{
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

/**
 * Fetch downloads the page and returns its paragraph text, one paragraph
 * per line. A non-200 answer is not an error, it yields empty text just like
 * a page without body paragraphs.
 */
func (c *Crawler) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Annotatef(err, "bad url %q", url)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.Annotatef(err, "failed to fetch %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.WithField("url", url).Warnf("fetch returned %d", resp.StatusCode)
		return "", nil
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return "", errors.Annotatef(err, "failed to parse %s", url)
	}
	return ExtractText(doc), nil
}

// ExtractText joins the text of every <p> outside the stripped elements.
func ExtractText(doc *html.Node) string {
	var paragraphs []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if strippedTags[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.P {
				text := nodeText(n)
				if utf8.RuneCountInString(text) > minParagraphRunes {
					paragraphs = append(paragraphs, text)
				}
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return strings.Join(paragraphs, "\n")
}

// nodeText concatenates the trimmed text nodes below n.
func nodeText(n *html.Node) string {
	sb := &strings.Builder{}
	var collect func(n *html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && strippedTags[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(strings.TrimSpace(n.Data))
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	collect(n)
	return sb.String()
}
