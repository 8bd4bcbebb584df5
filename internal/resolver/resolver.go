package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/parts-catalog-importer/internal/catalog"
	"github.com/maltedev/parts-catalog-importer/internal/config"
	"github.com/maltedev/parts-catalog-importer/internal/normalizer"
)

// Fetcher loads the rendered HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Resolver maps an article code or a URL to a product page URL.
//
// For article codes the site search is queried and the first catalog link in
// document order wins. Search results carry no relevance signal, so an
// unrelated top hit is returned as is.
type Resolver struct {
	site   config.SiteConfig
	logger *slog.Logger
}

func New(site config.SiteConfig, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		site:   site,
		logger: logger.With("component", "resolver"),
	}
}

// IsURL reports whether query is an absolute URL with a scheme and a host.
func IsURL(query string) bool {
	return normalizer.IsAbsoluteURL(strings.TrimSpace(query))
}

// SearchURL percent-encodes query with spaces as %20, the form the site's
// own search box submits.
func (r *Resolver) SearchURL(query string) string {
	return r.site.SearchURL() + "?" + url.QueryEscape(r.site.SearchParam) + "=" + escapeQuery(strings.TrimSpace(query))
}

// escapeQuery is url.QueryEscape with spaces as %20. A literal plus is
// already escaped as %2B, so the replacement cannot touch it.
func escapeQuery(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Resolve returns the canonical URL for query. found is false, with a nil
// error, when the search yields no catalog links. An absolute URL is returned
// unchanged without touching f.
func (r *Resolver) Resolve(ctx context.Context, f Fetcher, query string) (string, bool, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", false, catalog.ErrEmptyQuery
	}

	if IsURL(query) {
		return query, true, nil
	}

	searchURL := r.SearchURL(query)
	r.logger.Debug("searching catalog", "query", query, "url", searchURL)

	html, err := f.Fetch(ctx, searchURL)
	if err != nil {
		return "", false, fmt.Errorf("failed to search for %q: %w", query, err)
	}

	links := ExtractCatalogLinks(html, r.site.BaseURL)
	if len(links) == 0 {
		r.logger.Info("no catalog links in search results", "query", query)
		return "", false, nil
	}

	if len(links) > 1 {
		r.logger.Debug("several catalog links, taking the first", "query", query, "candidates", len(links))
	}
	return links[0], true, nil
}

// ExtractCatalogLinks returns the absolute, de-duplicated catalog product
// links of a page in document order.
func ExtractCatalogLinks(html, baseURL string) []string {
	links := []string{}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return links
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if !isCatalogLink(href) {
			return
		}

		u := normalizer.NormalizeURL(href, baseURL)
		if !normalizer.IsAbsoluteURL(u) {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		links = append(links, u)
	})

	return links
}

func isCatalogLink(href string) bool {
	if !strings.Contains(href, "/catalog/") {
		return false
	}
	path := href
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.HasSuffix(path, ".html")
}
