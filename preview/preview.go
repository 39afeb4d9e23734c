// Package preview produces reader-mode previews of story URLs, cached in
// the persistent key-value store so a URL is extracted at most once.
package preview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	goreadability "github.com/go-shiori/go-readability"
	"jaytaylor.com/html2text"
)

const (
	fetchTimeout  = 30 * time.Second
	maxBodySize   = 1 << 20 // 1 MiB
	userAgent     = "hnfeed/1.0"
	maxExcerptLen = 280

	keyPrefix = "preview:"
)

// httpClient is a dedicated client for page fetching with transport-level
// controls; story URLs point at arbitrary hosts.
var httpClient = &http.Client{
	Timeout: fetchTimeout,
	Transport: &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       90 * time.Second,
	},
}

// Preview is the extracted summary of a story URL.
type Preview struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Byline  string `json:"byline,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`
	Image   string `json:"image,omitempty"`
}

// Blobs is the cache the service writes through. A nil Blobs disables
// caching.
type Blobs interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

type Service struct {
	blobs Blobs
}

func NewService(blobs Blobs) *Service {
	return &Service{blobs: blobs}
}

// Get returns the preview for rawURL, extracting it on a cache miss. Cache
// faults and malformed cached entries fall through to extraction.
func (s *Service) Get(ctx context.Context, rawURL string) (*Preview, error) {
	key := keyPrefix + url.QueryEscape(rawURL)

	if s.blobs != nil {
		if raw, ok := s.blobs.Get(ctx, key); ok {
			var p Preview
			if err := json.Unmarshal([]byte(raw), &p); err == nil && p.URL != "" {
				return &p, nil
			}
			slog.Warn("discarding malformed cached preview", "url", rawURL)
		}
	}

	p, err := extract(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if s.blobs != nil {
		if data, err := json.Marshal(p); err == nil {
			s.blobs.Set(ctx, key, string(data))
		}
	}
	return p, nil
}

// extract fetches rawURL and runs reader-mode extraction over the body.
func extract(ctx context.Context, rawURL string) (*Preview, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("response exceeds %d bytes", maxBodySize)
	}

	article, err := goreadability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("readability extract: %w", err)
	}

	return &Preview{
		URL:     rawURL,
		Title:   article.Title,
		Byline:  article.Byline,
		Excerpt: excerptOf(article.Excerpt, article.Content),
		Image:   article.Image,
	}, nil
}

// excerptOf prefers the extractor's own excerpt and otherwise derives a
// plain-text one from the cleaned content HTML.
func excerptOf(excerpt, content string) string {
	text := strings.TrimSpace(excerpt)
	if text == "" && content != "" {
		plain, err := html2text.FromString(content, html2text.Options{TextOnly: true})
		if err == nil {
			text = strings.Join(strings.Fields(plain), " ")
		}
	}
	if len(text) > maxExcerptLen {
		// Back off to a rune start so the cut never splits a multibyte
		// character.
		cut := maxExcerptLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
		if i := strings.LastIndex(text, " "); i > 0 {
			text = text[:i]
		}
		text += "…"
	}
	return text
}
