package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cjmanca/ssmergerd/internal/cache"
	"github.com/cjmanca/ssmergerd/internal/logging"
)

// HTTPGatewayConfig configures HTTPGateway.
type HTTPGatewayConfig struct {
	SearchURL           string // e.g. "https://api.comick.fun/v1.0/search"
	DetailURLTemplate   string // e.g. "https://api.comick.fun/comic/%s"
	ProxyURI            string // challenge-bypass proxy base URL; empty disables fallback
	DirectRetryInterval time.Duration
	RequestTimeout      time.Duration
}

// HTTPGateway is the challenge-aware HTTP front end to the Comick API,
// grounded on the teacher's api.Client (rate.Limiter + http.Client
// construction in internal/api/client.go), extended with Cloudflare
// challenge detection and sticky-fallback proxy routing (spec.md §4.11).
type HTTPGateway struct {
	cfg     HTTPGatewayConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *logging.Logger

	// stickyUntil tracks, per endpoint host, the time until which
	// requests route through the proxy instead of attempting direct.
	// Adapted from the teacher's generic cache.Cache[T] (internal/cache)
	// to carry "last bad source" affinity rather than an API response.
	stickyUntil *cache.Cache[time.Time]
	stickyMu    sync.Mutex
}

// NewHTTPGateway builds an HTTPGateway. limiter rate-gates outbound
// requests exactly as the teacher's api.Client rate-limits Linear's
// GraphQL API.
func NewHTTPGateway(cfg HTTPGatewayConfig, limiter *rate.Limiter, logger *logging.Logger) *HTTPGateway {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(2), 5)
	}
	retryWindow := cfg.DirectRetryInterval
	if retryWindow <= 0 {
		retryWindow = time.Hour
	}
	return &HTTPGateway{
		cfg:         cfg,
		client:      &http.Client{Timeout: cfg.RequestTimeout},
		limiter:     limiter,
		logger:      logger,
		stickyUntil: cache.New[time.Time](retryWindow, 0),
	}
}

// Search implements SearchGateway.
func (g *HTTPGateway) Search(ctx context.Context, displayTitle string) SearchResult {
	u := g.cfg.SearchURL + "?q=" + url.QueryEscape(displayTitle)
	body, err := g.doGet(ctx, u, "search")
	if err != nil {
		return g.httpFailureResult(ctx, err)
	}
	var raw []rawSearchItem
	if err := json.Unmarshal(body, &raw); err != nil {
		return SearchResult{Outcome: GatewayMalformedPayload}
	}
	payloads, err := validateSearchItems(raw)
	if err != nil {
		return SearchResult{Outcome: GatewayMalformedPayload}
	}
	if len(payloads) == 0 {
		return SearchResult{Outcome: GatewaySuccess}
	}
	return SearchResult{Outcome: GatewaySuccess, Payload: &payloads[0]}
}

// Detail implements SearchGateway.
func (g *HTTPGateway) Detail(ctx context.Context, hid string) SearchResult {
	u := fmt.Sprintf(g.cfg.DetailURLTemplate, hid)
	body, err := g.doGet(ctx, u, "detail")
	if err != nil {
		return g.httpFailureResult(ctx, err)
	}
	var raw rawDetailPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return SearchResult{Outcome: GatewayMalformedPayload}
	}
	payload, err := validateDetailPayload(raw)
	if err != nil {
		return SearchResult{Outcome: GatewayMalformedPayload}
	}
	return SearchResult{Outcome: GatewaySuccess, Payload: &payload.Comic}
}

func (g *HTTPGateway) httpFailureResult(ctx context.Context, err error) SearchResult {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return SearchResult{Outcome: GatewayCancelled, Cancelled: ctx.Err() != nil}
	}
	return SearchResult{Outcome: GatewayHTTPFailure}
}

// doGet performs one gateway request, honoring sticky-fallback routing
// and detecting a fresh Cloudflare challenge on a direct attempt.
func (g *HTTPGateway) doGet(ctx context.Context, targetURL, endpoint string) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	host := endpointHost(targetURL)
	now := time.Now().UTC()
	if until, ok := g.stickyUntil.Get(host); ok && until.After(now) {
		if g.cfg.ProxyURI == "" {
			if g.logger != nil {
				g.logger.Warning("metadata.cloudflare.fallback.unavailable", "sticky routing requested but no proxy configured", logging.F("host", host))
			}
			return nil, errors.New("challenge-bypass proxy not configured")
		}
		return g.fetch(ctx, g.proxied(targetURL))
	}

	body, challenged, err := g.fetchDetectChallenge(ctx, targetURL)
	if err == nil && !challenged {
		if ok := g.clearSticky(host); ok && g.logger != nil {
			g.logger.Normal("metadata.cloudflare.fallback.sticky_cleared", "direct request succeeded past sticky expiry", logging.F("host", host))
		}
		return body, nil
	}
	if challenged {
		if g.cfg.ProxyURI == "" {
			if g.logger != nil {
				g.logger.Warning("metadata.cloudflare.fallback.unavailable", "challenge detected but no proxy configured", logging.F("host", host))
			}
			return nil, errors.New("cloudflare challenge detected, no bypass proxy configured")
		}
		until := now.Add(g.retryInterval())
		g.stickyUntil.Set(host, until)
		if g.logger != nil {
			g.logger.Normal("metadata.cloudflare.fallback.sticky_route", "routing via bypass proxy after challenge", logging.F("host", host), logging.F("until", until.Format(time.RFC3339)))
		}
		return g.fetch(ctx, g.proxied(targetURL))
	}
	return body, err
}

func (g *HTTPGateway) retryInterval() time.Duration {
	if g.cfg.DirectRetryInterval > 0 {
		return g.cfg.DirectRetryInterval
	}
	return time.Hour
}

func (g *HTTPGateway) clearSticky(host string) bool {
	_, had := g.stickyUntil.Get(host)
	if had {
		g.stickyUntil.Delete(host)
	}
	return had
}

func (g *HTTPGateway) proxied(targetURL string) string {
	return strings.TrimRight(g.cfg.ProxyURI, "/") + "?target=" + url.QueryEscape(targetURL)
}

func (g *HTTPGateway) fetch(ctx context.Context, targetURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("gateway request failed: status %d", resp.StatusCode)
	}
	return body, nil
}

// fetchDetectChallenge performs one direct request and classifies
// whether the response is a Cloudflare challenge page per spec.md
// §4.11: status 403/503 AND (header cf-mitigated: challenge OR a body
// marker among cf_chl_opt, /cdn-cgi/challenge-platform, "Just a moment").
func (g *HTTPGateway) fetchDetectChallenge(ctx context.Context, targetURL string) (body []byte, challenged bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, false, fmt.Errorf("read response: %w", readErr)
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if strings.EqualFold(resp.Header.Get("cf-mitigated"), "challenge") || containsChallengeMarker(body) {
			return body, true, nil
		}
	}
	if resp.StatusCode >= 400 {
		return nil, false, fmt.Errorf("gateway request failed: status %d", resp.StatusCode)
	}
	return body, false, nil
}

func containsChallengeMarker(body []byte) bool {
	s := string(body)
	markers := []string{"cf_chl_opt", "/cdn-cgi/challenge-platform", "Just a moment"}
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func endpointHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}

// --- wire payload shapes + strict validation (spec.md §4.11) ---

type rawSearchItem struct {
	HID       string           `json:"hid"`
	Slug      string           `json:"slug"`
	Title     string           `json:"title"`
	MDTitles  []rawTitleEntry  `json:"md_titles"`
	MDCovers  []rawCoverEntry  `json:"md_covers"`
}

type rawTitleEntry struct {
	Title string `json:"title"`
	Lang  string `json:"lang"`
}

type rawCoverEntry struct {
	B2Key string `json:"b2key"`
}

type rawDetailPayload struct {
	Comic rawSearchItem `json:"comic"`
}

func validateSearchItems(raw []rawSearchItem) ([]SearchPayload, error) {
	out := make([]SearchPayload, 0, len(raw))
	for _, item := range raw {
		payload, err := validateSearchItem(item)
		if err != nil {
			return nil, err
		}
		out = append(out, payload)
	}
	return out, nil
}

func validateSearchItem(item rawSearchItem) (SearchPayload, error) {
	if item.HID == "" || item.Slug == "" || item.Title == "" {
		return SearchPayload{}, errors.New("malformed payload: hid/slug/title must be non-empty")
	}
	if item.MDTitles == nil || item.MDCovers == nil {
		return SearchPayload{}, errors.New("malformed payload: md_titles/md_covers must be present")
	}
	titles := make([]TitleEntry, 0, len(item.MDTitles))
	for _, t := range item.MDTitles {
		if t.Title == "" {
			return SearchPayload{}, errors.New("malformed payload: md_titles[].title must be non-empty")
		}
		titles = append(titles, TitleEntry{Title: t.Title, Lang: t.Lang})
	}
	covers := make([]CoverEntry, 0, len(item.MDCovers))
	for _, c := range item.MDCovers {
		if c.B2Key == "" {
			return SearchPayload{}, errors.New("malformed payload: md_covers[].b2key must be non-empty")
		}
		covers = append(covers, CoverEntry{B2Key: c.B2Key})
	}
	return SearchPayload{
		HID:      item.HID,
		Slug:     item.Slug,
		Title:    item.Title,
		MDTitles: titles,
		MDCovers: covers,
	}, nil
}

func validateDetailPayload(raw rawDetailPayload) (DetailPayload, error) {
	comic, err := validateSearchItem(raw.Comic)
	if err != nil {
		return DetailPayload{}, fmt.Errorf("malformed payload: comic: %w", err)
	}
	return DetailPayload{Comic: comic}, nil
}
