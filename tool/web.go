package tool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/internal/util"
)

// HostLimiter hands out one token bucket per host so outbound fetches never
// hammer a single site.
type HostLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewHostLimiter allows perSecond requests per host with the given burst.
func NewHostLimiter(perSecond float64, burst int) *HostLimiter {
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: map[string]*rate.Limiter{},
	}
}

// Wait blocks until a request to host is allowed or ctx is done.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	h.mu.Lock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(h.limit, h.burst)
		h.limiters[host] = l
	}
	h.mu.Unlock()

	return l.Wait(ctx)
}

type fetched struct {
	URL         *url.URL
	ContentType string
	Body        []byte
	Truncated   bool
}

func fetch(ctx context.Context, client *http.Client, limiter *HostLimiter, rawURL string, maxBytes int64) (*fetched, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url %q has no host", rawURL)
	}

	if limiter != nil {
		if err := limiter.Wait(ctx, u.Hostname()); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "teammesh/1.0 (+https://github.com/hupe1980/teammesh)")
	req.Header.Set("Accept", "text/html,text/plain,application/json;q=0.9,*/*;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", u, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, err
	}

	out := &fetched{URL: resp.Request.URL, ContentType: resp.Header.Get("Content-Type"), Body: body}
	if int64(len(body)) > maxBytes {
		out.Body = body[:maxBytes]
		out.Truncated = true
	}

	return out, nil
}

func isHTML(contentType string, body []byte) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt == "text/html" || mt == "application/xhtml+xml"
	}
	return strings.Contains(strings.ToLower(http.DetectContentType(body)), "text/html")
}

// NewWebFetchTool returns the web_fetch tool. HTML responses are reduced to
// readable text; other content types are returned as is.
func NewWebFetchTool(client *http.Client, limiter *HostLimiter, maxBytes int64) Tool {
	const name = "web_fetch"

	return NewFunctionTool(
		name,
		"Fetch a web page or text resource by URL and return its readable text.",
		objectSchema(map[string]any{
			"url":       prop("string", "Absolute http(s) URL"),
			"max_chars": prop("integer", "Maximum characters to return (default 8000)"),
		}, "url"),
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			res, err := fetch(tc.Context(), client, limiter, stringArg(args, "url"), maxBytes)
			if err != nil {
				return nil, err
			}

			text := string(res.Body)
			if isHTML(res.ContentType, res.Body) {
				page, err := ExtractPage(bytes.NewReader(res.Body), res.URL)
				if err != nil {
					return nil, fmt.Errorf("parse html: %w", err)
				}
				text = page.Text
				if page.Title != "" {
					text = page.Title + "\n\n" + text
				}
			}

			return util.Truncate(text, intArg(args, "max_chars", 8000)), nil
		},
	)
}

// NewWebScrapeTool returns the web_scrape tool which extracts title,
// headings, text and outbound links from an HTML page.
func NewWebScrapeTool(client *http.Client, limiter *HostLimiter, maxBytes int64) Tool {
	const name = "web_scrape"

	return NewFunctionTool(
		name,
		"Scrape an HTML page and return its title, headings, text and links.",
		objectSchema(map[string]any{
			"url":       prop("string", "Absolute http(s) URL"),
			"max_links": prop("integer", "Maximum number of links to return (default 50)"),
			"max_chars": prop("integer", "Maximum characters of text to return (default 8000)"),
		}, "url"),
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			res, err := fetch(tc.Context(), client, limiter, stringArg(args, "url"), maxBytes)
			if err != nil {
				return nil, err
			}
			if !isHTML(res.ContentType, res.Body) {
				return nil, NewToolError(name, "resource is not an HTML page", CodeValidation)
			}

			page, err := ExtractPage(bytes.NewReader(res.Body), res.URL)
			if err != nil {
				return nil, fmt.Errorf("parse html: %w", err)
			}

			if maxLinks := intArg(args, "max_links", 50); maxLinks >= 0 && len(page.Links) > maxLinks {
				page.Links = page.Links[:maxLinks]
			}
			page.Text = util.Truncate(page.Text, intArg(args, "max_chars", 8000))

			return page, nil
		},
	)
}
