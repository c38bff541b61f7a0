package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// StripeChecker implements health checking for the Stripe API.
type StripeChecker struct {
	url    string
	client *http.Client
}

// NewStripeChecker creates a new Stripe health checker.
// The url should be the Stripe API base URL (e.g., "https://api.stripe.com").
func NewStripeChecker(url string) *StripeChecker {
	return &StripeChecker{
		url: url,
		client: &http.Client{
			Timeout: 3 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// HealthCheck verifies the Stripe API is reachable. Unauthenticated requests
// draw a 401, so any response below 500 counts as reachable; 5xx means
// Stripe itself is unwell.
func (s *StripeChecker) HealthCheck(ctx context.Context) error {
	if s.url == "" {
		return fmt.Errorf("stripe url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach stripe api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("stripe unhealthy: unexpected status code %d", resp.StatusCode)
	}

	return nil
}
