package errors

import (
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// mockClock is a controllable clock for testing auto-expiry.
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock(t time.Time) *mockClock {
	return &mockClock{now: t}
}

func (m *mockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func TestScrapeError_ImplementsError(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	se := ScrapeError{
		Code:    ErrAPIUnreachable,
		Message: "scrape pve1 failed",
		Target:  "pve1",
		Err:     cause,
	}

	var err error = &se
	if err.Error() != "scrape pve1 failed" {
		t.Fatalf("expected Error() = %q, got %q", "scrape pve1 failed", err.Error())
	}
	if !stderrors.Is(err, cause) {
		t.Fatal("expected errors.Is to reach the wrapped cause")
	}
}

func TestErrorCollector_Report(t *testing.T) {
	clk := newMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ec := NewErrorCollector(clk, 0)

	ec.Report(ScrapeError{
		Code:      ErrAPIUnreachable,
		Message:   "connection refused",
		Target:    "pve1",
		Timestamp: clk.Now().UnixMilli(),
	})

	active := ec.GetActiveErrors()
	if len(active) != 1 {
		t.Fatalf("expected 1 active error, got %d", len(active))
	}
	if active[0].Code != ErrAPIUnreachable {
		t.Fatalf("expected code %s, got %s", ErrAPIUnreachable, active[0].Code)
	}
}

func TestErrorCollector_AutoExpiry(t *testing.T) {
	clk := newMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ec := NewErrorCollector(clk, 0)

	ec.Report(ScrapeError{Code: ErrAuthFailed, Message: "401", Target: "pve1"})

	// Beyond the default 5-minute TTL.
	clk.Advance(6 * time.Minute)

	if active := ec.GetActiveErrors(); len(active) != 0 {
		t.Fatalf("expected 0 active errors after expiry, got %d", len(active))
	}
}

func TestErrorCollector_CustomTTL(t *testing.T) {
	clk := newMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ec := NewErrorCollector(clk, time.Minute)

	ec.Report(ScrapeError{Code: ErrTimeout, Message: "deadline exceeded", Target: "pve1"})
	clk.Advance(90 * time.Second)

	if active := ec.GetActiveErrors(); len(active) != 0 {
		t.Fatalf("expected error to expire after 1m TTL, got %d active", len(active))
	}
}

func TestErrorCollector_RefreshPreventsExpiry(t *testing.T) {
	clk := newMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ec := NewErrorCollector(clk, 0)

	se := ScrapeError{Code: ErrTimeout, Message: "request timeout", Target: "pve1"}
	ec.Report(se)

	clk.Advance(3 * time.Minute)
	ec.Report(se)
	clk.Advance(3 * time.Minute)

	if active := ec.GetActiveErrors(); len(active) != 1 {
		t.Fatalf("expected 1 active error (refreshed), got %d", len(active))
	}
}

func TestErrorCollector_Resolve(t *testing.T) {
	clk := newMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ec := NewErrorCollector(clk, 0)

	ec.Report(ScrapeError{Code: ErrAuthFailed, Message: "401", Target: "pve1"})
	ec.Report(ScrapeError{Code: ErrTimeout, Message: "timeout", Target: "pve1"})
	ec.Report(ScrapeError{Code: ErrTimeout, Message: "timeout", Target: "pve2"})

	ec.Resolve("pve1")

	active := ec.GetActiveErrors()
	if len(active) != 1 {
		t.Fatalf("expected 1 active error after Resolve, got %d", len(active))
	}
	if active[0].Target != "pve2" {
		t.Fatalf("expected remaining error for pve2, got %s", active[0].Target)
	}
}

func TestErrorCollector_ThreadSafe(t *testing.T) {
	clk := newMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ec := NewErrorCollector(clk, 0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			ec.Report(ScrapeError{
				Code:    Code(fmt.Sprintf("ERR_%d", idx%5)),
				Message: fmt.Sprintf("error %d", idx),
				Target:  fmt.Sprintf("pve%d", idx%3),
			})
			_ = ec.GetActiveErrors()
			_ = ec.GetActiveErrorCodes()
		}(i)
	}
	wg.Wait()

	if len(ec.GetActiveErrors()) == 0 {
		t.Fatal("expected some active errors after concurrent writes")
	}
}

func TestErrorCollector_GetActiveErrorCodes(t *testing.T) {
	clk := newMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ec := NewErrorCollector(clk, 0)

	ec.Report(ScrapeError{Code: ErrAuthFailed, Message: "auth failed", Target: "pve1"})
	ec.Report(ScrapeError{Code: ErrUnsupportedResourceKind, Message: "type openvz", Target: "pve1"})
	ec.Report(ScrapeError{Code: ErrVersionUnlabeled, Message: "empty version", Target: "pve2"})

	// Same code, different target: still one code.
	ec.Report(ScrapeError{Code: ErrAuthFailed, Message: "auth failed again", Target: "pve3"})

	codes := ec.GetActiveErrorCodes()
	if len(codes) != 3 {
		t.Fatalf("expected 3 unique codes, got %d: %v", len(codes), codes)
	}

	codeSet := make(map[string]bool)
	for _, c := range codes {
		codeSet[c] = true
	}
	for _, expected := range []string{string(ErrAuthFailed), string(ErrUnsupportedResourceKind), string(ErrVersionUnlabeled)} {
		if !codeSet[expected] {
			t.Fatalf("expected code %s in results", expected)
		}
	}
}

func TestErrorCollector_Clear(t *testing.T) {
	clk := newMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ec := NewErrorCollector(clk, 0)

	ec.Report(ScrapeError{Code: ErrScrapeFailed, Message: "failed", Target: "pve1"})
	ec.Report(ScrapeError{Code: ErrTimeout, Message: "timeout", Target: "pve2"})

	ec.Clear()

	if len(ec.GetActiveErrors()) != 0 {
		t.Fatal("expected 0 errors after Clear()")
	}
	if len(ec.GetActiveErrorCodes()) != 0 {
		t.Fatal("expected 0 error codes after Clear()")
	}
}
