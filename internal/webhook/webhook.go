package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"
)

const (
	retryAttempts = 8
	retryBase     = time.Second
	retryCap      = 5 * time.Minute
)

// Event is the body POSTed to a job's callback URL once it is terminal.
type Event struct {
	JobID  string  `json:"job_id"`
	Status string  `json:"status"`
	URL    *string `json:"url"`
}

// Send dispatches ev to callbackURL asynchronously.
// 8 retries max with full-jitter exponential backoff (cap 5 min). 30s timeout per request.
// ctx should outlive the job but end on server shutdown.
func Send(ctx context.Context, callbackURL string, ev Event) {
	if err := validateURL(callbackURL); err != nil {
		slog.Warn("webhook: rejected callback URL", "job_id", ev.JobID, "url", callbackURL, "error", err)
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("webhook: encode event", "job_id", ev.JobID, "error", err)
		return
	}
	go deliver(ctx, &http.Client{Timeout: 30 * time.Second}, callbackURL, payload, jitter)
}

// validateURL blocks non-HTTP schemes and private/internal IP ranges.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	host := u.Hostname()
	ips, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("DNS lookup failed: %w", err)
	}

	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip == nil {
			continue
		}
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("private/internal IP blocked: %s", ipStr)
		}
	}

	return nil
}

// deliver retries until a 2xx response, ctx is done or attempts run out.
// It reports whether delivery succeeded.
func deliver(ctx context.Context, client *http.Client, callbackURL string, payload []byte, backoff func(int) time.Duration) bool {
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if ctx.Err() != nil {
			return false
		}
		err := post(ctx, client, callbackURL, payload)
		if err == nil {
			return true
		}
		slog.Warn("webhook attempt failed", "attempt", attempt, "url", callbackURL, "error", err)
		if attempt < retryAttempts {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(backoff(attempt)):
			}
		}
	}
	slog.Error("webhook: all retries exhausted", "url", callbackURL)
	return false
}

// jitter returns a random duration between 0 and min(retryCap, retryBase * 2^attempt).
// Full jitter prevents synchronized retries when multiple webhooks fail at the same time.
func jitter(attempt int) time.Duration {
	exp := retryBase * (1 << attempt) // base * 2^attempt
	if exp > retryCap {
		exp = retryCap
	}
	return time.Duration(rand.Int63n(int64(exp)))
}

func post(ctx context.Context, client *http.Client, callbackURL string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}
	return nil
}
