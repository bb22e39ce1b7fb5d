package errors

import (
	"sync"
	"time"
)

// Code classifies a failed scrape.
type Code string

// Scrape error codes exposed on the debug endpoint.
const (
	ErrAPIUnreachable          Code = "API_UNREACHABLE"
	ErrAuthFailed              Code = "AUTH_FAILED"
	ErrUnsupportedResourceKind Code = "UNSUPPORTED_RESOURCE_KIND"
	ErrVersionUnlabeled        Code = "VERSION_UNLABELED"
	ErrTimeout                 Code = "TIMEOUT"
	ErrScrapeFailed            Code = "SCRAPE_FAILED"
)

// DefaultTTL is the auto-expiry duration for errors not re-reported.
const DefaultTTL = 5 * time.Minute

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock uses the system clock.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// ScrapeError is a classified scrape failure for one target.
type ScrapeError struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Target    string `json:"target"`
	Module    string `json:"module"`
	Timestamp int64  `json:"timestamp"`
	Err       error  `json:"-"`
}

// Error implements the error interface.
func (e *ScrapeError) Error() string {
	return e.Message
}

// Unwrap returns the wrapped error for errors.Is/As compatibility.
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

type entry struct {
	err        ScrapeError
	lastReport time.Time
}

// ErrorCollector is a thread-safe store of recent scrape failures.
// Errors are keyed by Code+Target and expire after the TTL unless
// re-reported.
type ErrorCollector struct {
	mu      sync.Mutex
	clock   Clock
	ttl     time.Duration
	entries map[string]entry // key = string(Code) + "|" + Target
}

// NewErrorCollector creates an ErrorCollector with the given clock and TTL.
// A non-positive ttl falls back to DefaultTTL.
func NewErrorCollector(clock Clock, ttl time.Duration) *ErrorCollector {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ErrorCollector{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[string]entry),
	}
}

func key(code Code, target string) string {
	return string(code) + "|" + target
}

// Report stores or refreshes an error.
func (ec *ErrorCollector) Report(err ScrapeError) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.entries[key(err.Code, err.Target)] = entry{
		err:        err,
		lastReport: ec.clock.Now(),
	}
}

// Resolve drops every error recorded for target, typically after a
// successful scrape.
func (ec *ErrorCollector) Resolve(target string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	for k, e := range ec.entries {
		if e.err.Target == target {
			delete(ec.entries, k)
		}
	}
}

// GetActiveErrors returns all errors reported within the TTL window.
func (ec *ErrorCollector) GetActiveErrors() []ScrapeError {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	now := ec.clock.Now()
	result := make([]ScrapeError, 0, len(ec.entries))
	for k, e := range ec.entries {
		if now.Sub(e.lastReport) > ec.ttl {
			delete(ec.entries, k)
			continue
		}
		result = append(result, e.err)
	}
	return result
}

// GetActiveErrorCodes returns a deduplicated list of active error codes.
func (ec *ErrorCollector) GetActiveErrorCodes() []string {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	now := ec.clock.Now()
	seen := make(map[Code]struct{})
	codes := make([]string, 0)
	for k, e := range ec.entries {
		if now.Sub(e.lastReport) > ec.ttl {
			delete(ec.entries, k)
			continue
		}
		if _, ok := seen[e.err.Code]; !ok {
			seen[e.err.Code] = struct{}{}
			codes = append(codes, string(e.err.Code))
		}
	}
	return codes
}

// Clear removes all tracked errors.
func (ec *ErrorCollector) Clear() {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.entries = make(map[string]entry)
}
