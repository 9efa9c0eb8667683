// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
client.go - Jellyfin/Emby REST client

One client serves both servers; they share the endpoints used here. Items do
not report the library they belong to, so the client resolves it from the
item path against the library locations (longest prefix wins). The library
list is cached for libraryCacheTTL and refreshed whenever a library is
created.

API Reference: https://api.jellyfin.org/
*/

//nolint:staticcheck // File documentation, not package doc
package mediaserver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/models"
)

const (
	libraryCacheTTL = 5 * time.Minute
	maxErrorBody    = 64 << 10
	clientName      = "Marquee"
	clientVersion   = "1.0.0"
)

// itemFields are requested on every item listing.
var itemFields = strings.Join([]string{
	"Genres", "Overview", "ProviderIds", "Path", "ProductionYear",
	"CommunityRating", "RunTimeTicks", "SeriesId", "SeriesName",
	"ParentIndexNumber", "IndexNumber",
}, ",")

// Client talks to a Jellyfin or Emby server.
type Client struct {
	serverType string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter

	libMu       sync.Mutex
	libraries   []models.Library
	librariesAt time.Time
	now         func() time.Time
}

var _ Provider = (*Client)(nil)

// NewClient builds a client from cfg.
func NewClient(cfg *config.MediaServerConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		serverType: cfg.Type,
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		now:        time.Now,
	}
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/System/Ping", nil, nil, nil)
}

// GetUsers lists all accounts.
func (c *Client) GetUsers(ctx context.Context) ([]models.User, error) {
	var dtos []userDto
	if err := c.do(ctx, http.MethodGet, "/Users", nil, nil, &dtos); err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	users := make([]models.User, len(dtos))
	for i := range dtos {
		users[i] = dtos[i].toModel()
	}
	return users, nil
}

// GetLibraries lists the top-level libraries and refreshes the path cache.
func (c *Client) GetLibraries(ctx context.Context) ([]models.Library, error) {
	var dtos []virtualFolderDto
	if err := c.do(ctx, http.MethodGet, "/Library/VirtualFolders", nil, nil, &dtos); err != nil {
		return nil, fmt.Errorf("get libraries: %w", err)
	}
	libs := make([]models.Library, len(dtos))
	for i := range dtos {
		libs[i] = dtos[i].toModel()
	}

	c.libMu.Lock()
	c.libraries = libs
	c.librariesAt = c.now()
	c.libMu.Unlock()

	return libs, nil
}

// GetResumeItems returns the user's partially watched movies and episodes.
func (c *Client) GetResumeItems(ctx context.Context, userID string) ([]models.ResumeItem, error) {
	q := url.Values{}
	q.Set("Fields", itemFields)
	q.Set("MediaTypes", "Video")
	q.Set("EnableUserData", "true")
	q.Set("EnableImages", "false")

	var resp itemsResponse
	endpoint := "/Users/" + url.PathEscape(userID) + "/Items/Resume"
	if err := c.do(ctx, http.MethodGet, endpoint, q, nil, &resp); err != nil {
		return nil, fmt.Errorf("get resume items for %s: %w", userID, err)
	}

	libs := c.cachedLibraries(ctx)
	items := make([]models.ResumeItem, 0, len(resp.Items))
	for i := range resp.Items {
		d := &resp.Items[i]
		kind := kindFromType(d.Type)
		if kind != models.KindMovie && kind != models.KindEpisode {
			continue
		}
		items = append(items, d.toResumeItem(libraryForPath(libs, d.Path), c.ImageURL(d.ID)))
	}
	return items, nil
}

// CreateVirtualLibrary creates a library over dir and returns its id.
func (c *Client) CreateVirtualLibrary(ctx context.Context, name, dir string, kind models.MediaKind) (string, error) {
	collectionType, ok := collectionTypes[kind]
	if !ok {
		return "", fmt.Errorf("create library: unsupported kind %q", kind)
	}

	q := url.Values{}
	q.Set("name", name)
	q.Set("collectionType", collectionType)
	q.Add("paths", dir)
	q.Set("refreshLibrary", "true")

	body := map[string]any{
		"LibraryOptions": map[string]any{
			"PathInfos":                     []map[string]string{{"Path": dir}},
			"EnableRealtimeMonitor":         false,
			"SaveLocalMetadata":             false,
			"EnableInternetProviders":       false,
			"EnableAutomaticSeriesGrouping": kind != models.KindMovie,
		},
	}
	if err := c.do(ctx, http.MethodPost, "/Library/VirtualFolders", q, body, nil); err != nil {
		return "", fmt.Errorf("create library %q: %w", name, err)
	}

	libs, err := c.GetLibraries(ctx)
	if err != nil {
		return "", err
	}
	for i := range libs {
		if libs[i].Name == name {
			return libs[i].ID, nil
		}
	}
	return "", fmt.Errorf("create library %q: %w after creation", name, ErrNotFound)
}

// RefreshLibrary queues a recursive metadata refresh of one library.
func (c *Client) RefreshLibrary(ctx context.Context, libraryID string) error {
	q := url.Values{}
	q.Set("Recursive", "true")
	q.Set("MetadataRefreshMode", "Default")
	q.Set("ImageRefreshMode", "Default")
	q.Set("ReplaceAllMetadata", "false")
	q.Set("ReplaceAllImages", "false")

	endpoint := "/Items/" + url.PathEscape(libraryID) + "/Refresh"
	if err := c.do(ctx, http.MethodPost, endpoint, q, nil, nil); err != nil {
		return fmt.Errorf("refresh library %s: %w", libraryID, err)
	}
	return nil
}

// GetUserLibraryAccess reads the library part of the user's policy.
func (c *Client) GetUserLibraryAccess(ctx context.Context, userID string) (*LibraryAccess, error) {
	policy, err := c.userPolicy(ctx, userID)
	if err != nil {
		return nil, err
	}

	access := &LibraryAccess{}
	if v, ok := policy["EnableAllFolders"].(bool); ok {
		access.EnableAllFolders = v
	}
	if raw, ok := policy["EnabledFolders"].([]any); ok {
		for _, id := range raw {
			if s, ok := id.(string); ok {
				access.EnabledFolders = append(access.EnabledFolders, s)
			}
		}
	}
	return access, nil
}

// UpdateUserLibraryAccess restricts the user to exactly allowed. The rest of
// the policy is written back unchanged.
func (c *Client) UpdateUserLibraryAccess(ctx context.Context, userID string, allowed []string) error {
	policy, err := c.userPolicy(ctx, userID)
	if err != nil {
		return err
	}

	folders := append([]string(nil), allowed...)
	sort.Strings(folders)
	policy["EnableAllFolders"] = false
	policy["EnabledFolders"] = folders

	endpoint := "/Users/" + url.PathEscape(userID) + "/Policy"
	if err := c.do(ctx, http.MethodPost, endpoint, nil, policy, nil); err != nil {
		return fmt.Errorf("update library access for %s: %w", userID, err)
	}
	return nil
}

// userPolicy fetches the policy as a generic map so fields this client does
// not model survive a round trip.
func (c *Client) userPolicy(ctx context.Context, userID string) (map[string]any, error) {
	var user struct {
		Policy map[string]any `json:"Policy"`
	}
	if err := c.do(ctx, http.MethodGet, "/Users/"+url.PathEscape(userID), nil, nil, &user); err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	if user.Policy == nil {
		user.Policy = map[string]any{}
	}
	return user.Policy, nil
}

// ListItems pages through every item of kind on the server.
func (c *Client) ListItems(ctx context.Context, kind models.MediaKind, start, limit int) (*ItemPage, error) {
	resp, err := c.listItems(ctx, "/Items", kind, start, limit, nil)
	if err != nil {
		return nil, fmt.Errorf("list %s items: %w", kind, err)
	}

	libs := c.cachedLibraries(ctx)
	page := &ItemPage{Total: resp.TotalRecordCount, Items: make([]models.CatalogItem, 0, len(resp.Items))}
	for i := range resp.Items {
		d := &resp.Items[i]
		if d.ID == "" {
			continue
		}
		page.Items = append(page.Items, d.toCatalogItem(libraryForPath(libs, d.Path), c.ImageURL(d.ID)))
	}
	return page, nil
}

// ListUserItems pages through the user's view of every item of kind and
// keeps those with any engagement.
func (c *Client) ListUserItems(ctx context.Context, userID string, kind models.MediaKind, start, limit int) (*HistoryPage, error) {
	extra := url.Values{}
	extra.Set("EnableUserData", "true")
	endpoint := "/Users/" + url.PathEscape(userID) + "/Items"

	resp, err := c.listItems(ctx, endpoint, kind, start, limit, extra)
	if err != nil {
		return nil, fmt.Errorf("list %s items for %s: %w", kind, userID, err)
	}

	page := &HistoryPage{Scanned: len(resp.Items), Total: resp.TotalRecordCount}
	for i := range resp.Items {
		if entry, ok := resp.Items[i].toHistoryEntry(userID); ok {
			if entry.Kind == "" {
				entry.Kind = kind
			}
			page.Entries = append(page.Entries, entry)
		}
	}
	return page, nil
}

func (c *Client) listItems(ctx context.Context, endpoint string, kind models.MediaKind, start, limit int, extra url.Values) (*itemsResponse, error) {
	itemType, ok := itemTypes[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported kind %q", kind)
	}

	q := url.Values{}
	q.Set("IncludeItemTypes", itemType)
	q.Set("Recursive", "true")
	q.Set("Fields", itemFields)
	q.Set("SortBy", "SortName")
	q.Set("SortOrder", "Ascending")
	q.Set("StartIndex", strconv.Itoa(start))
	q.Set("Limit", strconv.Itoa(limit))
	q.Set("EnableImages", "false")
	for k, vs := range extra {
		q[k] = vs
	}

	var resp itemsResponse
	if err := c.do(ctx, http.MethodGet, endpoint, q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ImageURL returns the primary image URL of an item.
func (c *Client) ImageURL(itemID string) string {
	if itemID == "" {
		return ""
	}
	return c.baseURL + "/Items/" + url.PathEscape(itemID) + "/Images/Primary?maxWidth=600&quality=90"
}

// cachedLibraries returns the library list, refetching it when stale. A
// failed refetch keeps the previous list; items then resolve against it.
func (c *Client) cachedLibraries(ctx context.Context) []models.Library {
	c.libMu.Lock()
	libs, at := c.libraries, c.librariesAt
	c.libMu.Unlock()

	if libs != nil && c.now().Sub(at) < libraryCacheTTL {
		return libs
	}
	fresh, err := c.GetLibraries(ctx)
	if err != nil {
		return libs
	}
	return fresh
}

// libraryForPath returns the library whose location is the longest prefix
// of itemPath.
func libraryForPath(libs []models.Library, itemPath string) *models.Library {
	if itemPath == "" {
		return nil
	}
	clean := path.Clean(strings.ReplaceAll(itemPath, "\\", "/"))

	var best *models.Library
	bestLen := -1
	for i := range libs {
		for _, loc := range libs[i].Paths {
			l := strings.TrimSuffix(path.Clean(strings.ReplaceAll(loc, "\\", "/")), "/")
			if l == "" || l == "." {
				continue
			}
			if (clean == l || strings.HasPrefix(clean, l+"/")) && len(l) > bestLen {
				best, bestLen = &libs[i], len(l)
			}
		}
	}
	return best
}

// do performs one API call. body is JSON-encoded when non-nil and out is
// decoded from a 200 response when non-nil.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("media server rate limiter: %w", err)
	}

	fullURL := c.baseURL + endpoint
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reqBody io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RecordMediaServerRequest(metricEndpoint(endpoint), time.Since(start))
	if err != nil {
		return fmt.Errorf("%s %s request failed: %w", c.serverType, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s returned %d", ErrUnauthorized, c.serverType, endpoint, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, c.serverType, endpoint)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s %s returned status %d: %s", c.serverType, endpoint, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", c.serverType, endpoint, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("X-Emby-Token", c.apiKey)
	req.Header.Set("X-Emby-Authorization", fmt.Sprintf(
		`MediaBrowser Client="%s", Device="%s", DeviceId="marquee", Version="%s", Token="%s"`,
		clientName, clientName, clientVersion, c.apiKey))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
}

// metricEndpoint collapses ids out of a path so the label stays bounded.
func metricEndpoint(endpoint string) string {
	parts := strings.Split(endpoint, "/")
	for i := range parts {
		if i > 0 && (parts[i-1] == "Users" || parts[i-1] == "Items") && parts[i] != "" && parts[i] != "Resume" {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}
