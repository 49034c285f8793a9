// Package crm implements the REST client for the enrollment CRM. It is the
// only package that knows the remote paths, query conventions and error
// classification; everything above it works with domain types.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dkurbatov/zayavki-bot/internal/domain"
	"github.com/dkurbatov/zayavki-bot/internal/ops"
)

const (
	outcomeOK           = "ok"
	outcomeUnauthorized = "unauthorized"
	outcomeRemoteError  = "remote_error"
	outcomeTransport    = "transport_error"
)

// Client talks to the CRM over HTTPS with bearer authorization.
type Client struct {
	base    string
	year    int
	http    *http.Client
	metrics *ops.Metrics

	// dc is the monotonically increasing cache-buster every GET carries,
	// seeded from wall-clock millis so values keep growing across restarts.
	dc atomic.Int64
}

// NewClient builds a client for the CRM at baseURL. academicYearID scopes the
// order list; timeout applies to every remote call. metrics may be nil.
func NewClient(baseURL string, timeout time.Duration, academicYearID int, metrics *ops.Metrics) *Client {
	c := &Client{
		base:    strings.TrimRight(baseURL, "/"),
		year:    academicYearID,
		http:    &http.Client{Timeout: timeout},
		metrics: metrics,
	}
	c.dc.Store(time.Now().UnixMilli())
	return c
}

type extFilter struct {
	Property   string `json:"property"`
	Value      any    `json:"value"`
	Comparison string `json:"comparison,omitempty"`
}

// Login performs the login exchange and returns the bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", fmt.Errorf("encode login body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/user/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	c.setHeaders(req, "")

	resp, err := c.http.Do(req)
	if err != nil {
		c.count("login", outcomeTransport)
		return "", &domain.AuthError{Kind: domain.AuthUnreachable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.count("login", outcomeRemoteError)
		// A 5xx is the site being down, not the password being wrong.
		kind := domain.AuthInvalidCredentials
		if resp.StatusCode >= 500 {
			kind = domain.AuthUnreachable
		}
		return "", &domain.AuthError{
			Kind: kind,
			Err:  &domain.RemoteError{Op: "login", Status: resp.StatusCode},
		}
	}

	var payload struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.count("login", outcomeRemoteError)
		return "", &domain.AuthError{Kind: domain.AuthInvalidCredentials, Err: fmt.Errorf("decode login response: %w", err)}
	}
	if payload.Data.AccessToken == "" {
		c.count("login", outcomeRemoteError)
		return "", &domain.AuthError{Kind: domain.AuthInvalidCredentials, Err: fmt.Errorf("login response carried no access token")}
	}

	c.count("login", outcomeOK)
	return payload.Data.AccessToken, nil
}

// Orders fetches the raw order list for the configured academic year.
func (c *Client) Orders(ctx context.Context, token string) ([]domain.RawOrder, error) {
	filters, err := json.Marshal([]extFilter{{Property: "fact_academic_year_id", Value: c.year, Comparison: "eq"}})
	if err != nil {
		return nil, fmt.Errorf("encode order filters: %w", err)
	}

	query := url.Values{
		"page":       {"1"},
		"start":      {"0"},
		"length":     {"150"},
		"extFilters": {string(filters)},
	}

	var payload struct {
		Data []domain.RawOrder `json:"data"`
	}
	if err := c.getJSON(ctx, token, "order", "/api/rest/order", query, &payload); err != nil {
		return nil, err
	}
	return payload.Data, nil
}

// SiteUser fetches the requester profile by id.
func (c *Client) SiteUser(ctx context.Context, token string, id int64) (*domain.SiteUser, error) {
	var payload struct {
		Data []domain.SiteUser `json:"data"`
	}
	path := fmt.Sprintf("/api/rest/siteuser/%d", id)
	if err := c.getJSON(ctx, token, "siteuser", path, url.Values{}, &payload); err != nil {
		return nil, err
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("siteuser %d: empty profile", id)
	}
	return &payload.Data[0], nil
}

// EventGroup fetches group metadata by group id.
func (c *Client) EventGroup(ctx context.Context, token string, id int64) (*domain.EventGroup, error) {
	query := url.Values{
		"format": {"mini"},
		"id":     {strconv.FormatInt(id, 10)},
		"page":   {"1"},
		"start":  {"0"},
		"length": {"100"},
	}

	var payload struct {
		Data []domain.EventGroup `json:"data"`
	}
	if err := c.getJSON(ctx, token, "eventGroups", "/api/rest/eventGroups", query, &payload); err != nil {
		return nil, err
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("eventGroups %d: empty result", id)
	}
	return &payload.Data[0], nil
}

// GroupSchedule fetches the weekly schedule rows for a group.
func (c *Client) GroupSchedule(ctx context.Context, token string, groupID int64) ([]domain.ScheduleRow, error) {
	filters, err := json.Marshal([]extFilter{{Property: "group_id", Value: strconv.FormatInt(groupID, 10)}})
	if err != nil {
		return nil, fmt.Errorf("encode schedule filters: %w", err)
	}

	query := url.Values{
		"page":       {"1"},
		"start":      {"0"},
		"length":     {"25"},
		"extFilters": {string(filters)},
	}

	var payload struct {
		Data []domain.ScheduleRow `json:"data"`
	}
	if err := c.getJSON(ctx, token, "eventGroupSchedule", "/api/rest/eventGroupSchedule", query, &payload); err != nil {
		return nil, err
	}
	return payload.Data, nil
}

// Approve submits an approval comment for the order.
func (c *Client) Approve(ctx context.Context, token string, orderID int64, comment string) error {
	body, err := json.Marshal(map[string]string{"comment": comment})
	if err != nil {
		return fmt.Errorf("encode approve body: %w", err)
	}

	path := fmt.Sprintf("%s/api/rest/order/%d/approve", c.base, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build approve request: %w", err)
	}
	c.setHeaders(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		c.count("approve", outcomeTransport)
		return &domain.TransportError{Op: "approve", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.count("approve", outcomeUnauthorized)
		return fmt.Errorf("approve: %w", domain.ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.count("approve", outcomeRemoteError)
		return &domain.RemoteError{Op: "approve", Status: resp.StatusCode}
	}

	c.count("approve", outcomeOK)
	return nil
}

func (c *Client) getJSON(ctx context.Context, token, endpoint, path string, query url.Values, out any) error {
	query.Set("_dc", strconv.FormatInt(c.dc.Add(1), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	c.setHeaders(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		c.count(endpoint, outcomeTransport)
		return &domain.TransportError{Op: endpoint, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.count(endpoint, outcomeUnauthorized)
		return fmt.Errorf("%s: %w", endpoint, domain.ErrUnauthorized)
	case resp.StatusCode != http.StatusOK:
		c.count(endpoint, outcomeRemoteError)
		return &domain.RemoteError{Op: endpoint, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.count(endpoint, outcomeRemoteError)
		return fmt.Errorf("%s: decode response: %w", endpoint, err)
	}

	c.count(endpoint, outcomeOK)
	return nil
}

// setHeaders applies the browser-imitating header set the CRM expects, plus
// bearer authorization when a token is present.
func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) count(endpoint, outcome string) {
	if c.metrics != nil {
		c.metrics.RemoteRequests.WithLabelValues(endpoint, outcome).Inc()
	}
}
