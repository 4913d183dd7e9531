package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const maxSearchBody = 2 << 20

// SearchResult is one scraped web search hit.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

type webSearch struct {
	cfg     WebSearchConfig
	client  *http.Client
	cache   *cache.Cache
	limiter *rate.Limiter
}

func newWebSearch(cfg WebSearchConfig, client *http.Client) runFunc {
	if client == nil {
		client = &http.Client{}
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(time.Duration(cfg.MinInterval))
	}
	ws := &webSearch{
		cfg:     cfg,
		client:  client,
		cache:   cache.New(time.Duration(cfg.CacheTTL), 2*time.Duration(cfg.CacheTTL)+time.Minute),
		limiter: rate.NewLimiter(limit, 1),
	}
	return ws.run
}

func (w *webSearch) run(ctx context.Context, input string) (string, error) {
	query := strings.TrimSpace(input)
	if query == "" {
		return "", NewToolError(NameWebSearch, "empty search query", CodeValidation)
	}
	key := strings.ToLower(query)
	if w.cfg.CacheTTL > 0 {
		if v, ok := w.cache.Get(key); ok {
			return v.(string), nil
		}
	}

	results, err := w.search(ctx, query)
	if err != nil {
		return "", err
	}
	out := formatResults(query, results)
	if w.cfg.CacheTTL > 0 {
		w.cache.Set(key, out, cache.DefaultExpiration)
	}
	return out, nil
}

func (w *webSearch) search(ctx context.Context, query string) ([]SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(w.cfg.Timeout))
	defer cancel()
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, NewToolError(NameWebSearch, fmt.Sprintf("rate limit wait: %v", err), CodeTimeout)
	}

	u, err := url.Parse(w.cfg.Endpoint)
	if err != nil {
		return nil, NewToolError(NameWebSearch, fmt.Sprintf("invalid endpoint: %v", err), CodeValidation)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, NewToolError(NameWebSearch, fmt.Sprintf("build request: %v", err), CodeExecution)
	}
	req.Header.Set("User-Agent", w.cfg.UserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, NewToolError(NameWebSearch, fmt.Sprintf("search request failed: %v", err), CodeExecution)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, NewToolError(NameWebSearch, fmt.Sprintf("search returned HTTP %d", resp.StatusCode), CodeExecution)
	}
	return ParseResults(io.LimitReader(resp.Body, maxSearchBody), w.cfg.MaxResults)
}

// ParseResults extracts up to max results from a DuckDuckGo HTML result page.
// Pages without results yield an empty slice, not an error.
func ParseResults(r io.Reader, max int) ([]SearchResult, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, NewToolError(NameWebSearch, fmt.Sprintf("parse results: %v", err), CodeExecution)
	}
	var (
		results []SearchResult
		walk    func(n *html.Node)
	)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result__a"):
				if len(results) >= max {
					return
				}
				results = append(results, SearchResult{
					Title: collapse(textOf(n)),
					URL:   decodeRedirect(attr(n, "href")),
				})
				return
			case hasClass(n, "result__snippet"):
				if len(results) > 0 && results[len(results)-1].Snippet == "" {
					results[len(results)-1].Snippet = collapse(textOf(n))
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

func formatResults(query string, results []SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for: %s", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Search results for %q:\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }

// decodeRedirect unwraps DuckDuckGo "/l/?uddg=<target>" links.
func decodeRedirect(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}
