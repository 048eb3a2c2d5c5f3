package esi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"killboard-gateway/esi/domain"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://esi.evetech.net/latest"
	DefaultUserAgent = "killboard-gateway"

	maxErrorBody = 64 << 10
)

// Client implementa domain.Upstream sobre net/http.
//
// O limiter local (token bucket) só suaviza rajadas deste processo; o limite
// compartilhado entre processos fica no gateway (application.RateLimiter).
type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
	limiter   *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRate configura o token bucket local. rps <= 0 desliga o limiter.
func WithRate(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{Timeout: 30 * time.Second},
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		limiter:   rate.NewLimiter(rate.Limit(50), 50),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) GetCharacter(ctx context.Context, id int64) (domain.CharacterPayload, domain.ResponseMeta, error) {
	return doJSON[domain.CharacterPayload](ctx, c, "characters", http.MethodGet, fmt.Sprintf("/characters/%d/", id), nil)
}

func (c *Client) GetCorporation(ctx context.Context, id int64) (domain.CorporationPayload, domain.ResponseMeta, error) {
	return doJSON[domain.CorporationPayload](ctx, c, "corporations", http.MethodGet, fmt.Sprintf("/corporations/%d/", id), nil)
}

func (c *Client) GetAlliance(ctx context.Context, id int64) (domain.AlliancePayload, domain.ResponseMeta, error) {
	return doJSON[domain.AlliancePayload](ctx, c, "alliances", http.MethodGet, fmt.Sprintf("/alliances/%d/", id), nil)
}

func (c *Client) GetFactions(ctx context.Context) ([]domain.FactionPayload, domain.ResponseMeta, error) {
	return doJSON[[]domain.FactionPayload](ctx, c, "universe_factions", http.MethodGet, "/universe/factions/", nil)
}

// PostAffiliation é a busca em lote. Um único id inválido faz o upstream rejeitar o lote inteiro.
func (c *Client) PostAffiliation(ctx context.Context, ids []int64) ([]domain.AffiliationPayload, domain.ResponseMeta, error) {
	return doJSON[[]domain.AffiliationPayload](ctx, c, "characters_affiliation", http.MethodPost, "/characters/affiliation/", ids)
}

type errorBody struct {
	Error string `json:"error"`
}

func doJSON[T any](ctx context.Context, c *Client, op, method, path string, body any) (T, domain.ResponseMeta, error) {
	var out T

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return out, domain.ResponseMeta{}, fmt.Errorf("%s: local limiter: %w", op, err)
		}
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return out, domain.ResponseMeta{}, fmt.Errorf("%s: encode body: %w", op, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return out, domain.ResponseMeta{}, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return out, domain.ResponseMeta{}, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	meta := parseMeta(resp)
	if resp.StatusCode >= http.StatusBadRequest {
		return out, meta, newUpstreamError(op, resp, meta)
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, meta, fmt.Errorf("%s: %w: %v", op, domain.ErrValidation, err)
	}
	return out, meta, nil
}

func newUpstreamError(op string, resp *http.Response, meta domain.ResponseMeta) *domain.UpstreamError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := strings.TrimSpace(string(raw))
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
		msg = eb.Error
	}

	return &domain.UpstreamError{
		Op:      op,
		Status:  resp.StatusCode,
		Message: msg,
		// ESI responde 404 "Character has been deleted!" para personagens apagados
		Deleted: resp.StatusCode == http.StatusNotFound && strings.Contains(strings.ToLower(msg), "deleted"),
		Meta:    meta,
	}
}

func parseMeta(resp *http.Response) domain.ResponseMeta {
	meta := domain.ResponseMeta{Status: resp.StatusCode}

	if v := resp.Header.Get("Expires"); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			meta.Expires = t
		}
	}

	remain, errR := strconv.Atoi(strings.TrimSpace(resp.Header.Get("X-ESI-Error-Limit-Remain")))
	reset, errS := strconv.Atoi(strings.TrimSpace(resp.Header.Get("X-ESI-Error-Limit-Reset")))
	if errR == nil && errS == nil {
		meta.HasErrorLimit = true
		meta.ErrorRemain = remain
		meta.ErrorReset = reset
	}

	if v := strings.TrimSpace(resp.Header.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			meta.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return meta
}
