package pveapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mittelab/prometheus-pve-exporter/pkg/model"
)

// TicketLifetime is how long Proxmox VE accepts an authentication ticket.
const TicketLifetime = 2 * time.Hour

// ticketRenewAfter leaves headroom before the server expires a ticket.
const ticketRenewAfter = TicketLifetime - 15*time.Minute

// tokenTransport adds a PVEAPIToken Authorization header to every request.
type tokenTransport struct {
	header string
	next   http.RoundTripper
}

// WithAuth wraps a RoundTripper with API token authorization for
// user!tokenName=tokenValue.
func WithAuth(user, tokenName, tokenValue string, next http.RoundTripper) http.RoundTripper {
	return &tokenTransport{
		header: fmt.Sprintf("PVEAPIToken=%s!%s=%s", user, tokenName, tokenValue),
		next:   next,
	}
}

func (a *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", a.header)
	return a.next.RoundTrip(req)
}

// ticketTransport logs in with user and password, caches the ticket and
// sends it as the PVEAuthCookie cookie. The ticket is renewed before it
// expires and dropped when the server rejects it.
type ticketTransport struct {
	loginURL string
	user     string
	password string
	next     http.RoundTripper
	now      func() time.Time

	mu     sync.Mutex
	ticket *model.Ticket
	issued time.Time
}

// WithTicket wraps a RoundTripper with ticket authorization. loginURL is the
// full URL of the /access/ticket endpoint.
func WithTicket(loginURL, user, password string, next http.RoundTripper) http.RoundTripper {
	return &ticketTransport{
		loginURL: loginURL,
		user:     user,
		password: password,
		next:     next,
		now:      time.Now,
	}
}

func (t *ticketTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ticket, err := t.current(req.Context())
	if err != nil {
		return nil, err
	}

	req = req.Clone(req.Context())
	req.Header.Set("Cookie", "PVEAuthCookie="+ticket.Ticket)
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		req.Header.Set("CSRFPreventionToken", ticket.CSRFPreventionToken)
	}

	resp, err := t.next.RoundTrip(req)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		t.invalidate(ticket)
	}
	return resp, err
}

func (t *ticketTransport) current(ctx context.Context) (*model.Ticket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ticket != nil && t.now().Sub(t.issued) < ticketRenewAfter {
		return t.ticket, nil
	}

	ticket, err := t.login(ctx)
	if err != nil {
		return nil, err
	}
	t.ticket = ticket
	t.issued = t.now()
	return ticket, nil
}

func (t *ticketTransport) invalidate(ticket *model.Ticket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ticket == ticket {
		t.ticket = nil
	}
}

func (t *ticketTransport) login(ctx context.Context) (*model.Ticket, error) {
	form := url.Values{}
	form.Set("username", t.user)
	form.Set("password", t.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("pveapi: failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("pveapi: login request failed: %w", err)
	}

	var env model.Envelope[*model.Ticket]
	if err := ParseResponse(resp, "/access/ticket", &env); err != nil {
		return nil, err
	}
	if env.Data == nil || env.Data.Ticket == "" {
		return nil, &APIError{Status: http.StatusUnauthorized, Path: "/access/ticket", Reason: "empty ticket"}
	}
	return env.Data, nil
}

// loggingTransport logs request method/URL and response status.
type loggingTransport struct {
	logger *slog.Logger
	next   http.RoundTripper
}

// WithLogging wraps a RoundTripper with request/response logging.
func WithLogging(logger *slog.Logger, next http.RoundTripper) http.RoundTripper {
	return &loggingTransport{logger: logger, next: next}
}

func (l *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := l.next.RoundTrip(req)
	elapsed := time.Since(start)

	if err != nil {
		l.logger.Warn("API request failed",
			"method", req.Method,
			"url", req.URL.Redacted(),
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return resp, err
	}

	l.logger.Debug("API request completed",
		"method", req.Method,
		"url", req.URL.Redacted(),
		"status", resp.StatusCode,
		"duration_ms", elapsed.Milliseconds(),
	)
	return resp, nil
}

// APIError is a non-200 response from the Proxmox VE API.
type APIError struct {
	Status int
	Path   string
	// Reason is the status text Proxmox VE puts after the code, e.g.
	// "authentication failure".
	Reason string
	Errors map[string]string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("pveapi: %s: HTTP %d", e.Path, e.Status)
	if e.Reason != "" {
		msg += " " + e.Reason
	}
	if len(e.Errors) > 0 {
		msg += fmt.Sprintf(" %v", e.Errors)
	}
	return msg
}

// IsAuthError reports whether err is a 401 or 403 response.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
}

// drainAndClose reads remaining body bytes and closes, preventing connection leaks.
func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	body.Close()
}

// ParseResponse decodes a 200 response into v with numbers kept as
// json.Number, and turns anything else into an *APIError.
func ParseResponse(resp *http.Response, path string, v any) error {
	_, err := parseResponse(resp, path, v)
	return err
}

// parseResponse is ParseResponse that also returns the number of body bytes
// read.
func parseResponse(resp *http.Response, path string, v any) (int64, error) {
	defer drainAndClose(resp.Body)

	cr := NewCountingReader(resp.Body)
	if resp.StatusCode == http.StatusOK {
		dec := json.NewDecoder(cr)
		dec.UseNumber()
		if err := dec.Decode(v); err != nil {
			return cr.Count(), fmt.Errorf("pveapi: failed to decode %s response: %w", path, err)
		}
		return cr.Count(), nil
	}

	apiErr := &APIError{
		Status: resp.StatusCode,
		Path:   path,
		Reason: strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode))),
	}
	var body model.ErrorResponse
	if err := json.NewDecoder(cr).Decode(&body); err == nil {
		apiErr.Errors = body.Errors
		if apiErr.Reason == "" {
			apiErr.Reason = body.Message
		}
	}
	return cr.Count(), apiErr
}
