// Package web implements the HTTPS adapter. It understands two server
// shapes: directory-listing responses (nginx-style JSON autoindex or plain
// HTML indexes) and, for servers that expose no listing at all, per-name
// existence probing with HEAD requests.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/domain"
	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/protocol"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 8 << 20
)

type Adapter struct {
	settings domain.WebSettings
	creds    protocol.Credentials
	client   *http.Client
	clock    func() time.Time
}

func New(settings domain.WebSettings, creds protocol.Credentials) *Adapter {
	return &Adapter{
		settings: settings,
		creds:    creds,
		client:   &http.Client{},
		clock:    time.Now,
	}
}

func (a *Adapter) List(ctx context.Context, req protocol.ListRequest) ([]domain.DiscoveredFile, error) {
	timeout := a.settings.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	base, err := url.Parse(a.settings.BaseURL)
	if err != nil {
		return nil, &protocol.ProtocolError{Err: fmt.Errorf("parse base url: %w", err)}
	}
	dirURL := *base
	dirURL.Path = path.Join(base.Path, req.Path)

	if a.settings.ProbeOnly {
		return a.probe(ctx, dirURL, req)
	}
	return a.list(ctx, dirURL, req)
}

// list fetches and parses a directory listing.
func (a *Adapter) list(ctx context.Context, dirURL url.URL, req protocol.ListRequest) ([]domain.DiscoveredFile, error) {
	resp, err := a.do(ctx, http.MethodGet, dirURL.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &protocol.NetworkError{Err: fmt.Errorf("read listing: %w", err)}
	}

	var entries []listEntry
	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "application/json"):
		entries, err = parseJSONListing(body)
	default:
		entries, err = parseHTMLListing(body)
	}
	if err != nil {
		return nil, &protocol.ProtocolError{Err: err}
	}

	now := a.clock().UTC()
	var files []domain.DiscoveredFile
	for _, e := range entries {
		if !protocol.MatchName(e.name, req.NamePattern, req.Extension) {
			continue
		}
		fileURL := dirURL
		fileURL.Path = path.Join(dirURL.Path, e.name)
		files = append(files, domain.DiscoveredFile{
			Name:         e.name,
			Locator:      fileURL.String(),
			Size:         e.size,
			LastModified: e.modified,
			DiscoveredAt: now,
		})
	}

	files, truncated := protocol.Truncate(files)
	if truncated {
		log.Printf("web: listing for %s truncated at %d entries", dirURL.Path, protocol.MaxListResults)
	}
	return files, nil
}

// probe checks existence of a single literal filename with a HEAD request.
// Globs cannot be probed; that combination is rejected at configuration time
// and defended here.
func (a *Adapter) probe(ctx context.Context, dirURL url.URL, req protocol.ListRequest) ([]domain.DiscoveredFile, error) {
	if strings.ContainsAny(req.NamePattern, "*?[") {
		return nil, &protocol.ProtocolError{Err: errors.New("probe mode requires a literal filename pattern")}
	}
	if !protocol.MatchName(req.NamePattern, "", req.Extension) {
		return nil, nil
	}

	fileURL := dirURL
	fileURL.Path = path.Join(dirURL.Path, req.NamePattern)

	resp, err := a.do(ctx, http.MethodHead, fileURL.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	file := domain.DiscoveredFile{
		Name:         req.NamePattern,
		Locator:      fileURL.String(),
		Size:         resp.ContentLength,
		DiscoveredAt: a.clock().UTC(),
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			file.LastModified = t
		}
	}
	return []domain.DiscoveredFile{file}, nil
}

func (a *Adapter) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, &protocol.ProtocolError{Err: err}
	}

	switch a.settings.AuthScheme {
	case "basic":
		httpReq.SetBasicAuth(a.creds.Username, a.creds.Password)
	case "bearer":
		httpReq.Header.Set("Authorization", "Bearer "+a.creds.Token)
	}
	httpReq.Header.Set("Accept", "application/json, text/html")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, &protocol.NetworkError{Err: err}
	}
	return resp, nil
}

func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", protocol.ErrAuthFailed, code)
	case code == http.StatusNotFound:
		return protocol.ErrNotFound
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500:
		return &protocol.NetworkError{Err: fmt.Errorf("status %d", code)}
	default:
		return &protocol.ProtocolError{Err: fmt.Errorf("unexpected status %d", code)}
	}
}

type listEntry struct {
	name     string
	size     int64
	modified time.Time
}

// parseJSONListing understands the nginx autoindex JSON shape:
// [{"name":"a.csv","type":"file","mtime":"Wed, 01 Jan 2026 00:00:00 GMT","size":123}].
func parseJSONListing(body []byte) ([]listEntry, error) {
	var raw []struct {
		Name  string `json:"name"`
		Type  string `json:"type"`
		MTime string `json:"mtime"`
		Size  int64  `json:"size"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse json listing: %w", err)
	}

	var entries []listEntry
	for _, e := range raw {
		if e.Type != "" && e.Type != "file" {
			continue
		}
		entry := listEntry{name: e.Name, size: e.Size}
		if e.MTime != "" {
			if t, err := http.ParseTime(e.MTime); err == nil {
				entry.modified = t
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// parseHTMLListing extracts anchor targets from a plain HTML index page.
// Directories (trailing slash), parent links and external references are
// skipped.
func parseHTMLListing(body []byte) ([]listEntry, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse html listing: %w", err)
	}

	var entries []listEntry
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				if name, ok := fileNameFromHref(attr.Val); ok {
					entries = append(entries, listEntry{name: name})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return entries, nil
}

func fileNameFromHref(href string) (string, bool) {
	if href == "" || strings.HasPrefix(href, "?") || strings.HasPrefix(href, "#") {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil || u.IsAbs() {
		return "", false
	}
	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		return "", false
	}
	name := path.Base(p)
	if name == "." || name == ".." {
		return "", false
	}
	unescaped, err := url.PathUnescape(name)
	if err != nil {
		return name, true
	}
	return unescaped, true
}
