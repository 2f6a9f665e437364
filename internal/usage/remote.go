package usage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RemoteChecker queries the subscription service for the authoritative
// tier of an account. Failures are soft: the local state keeps working
// offline.
type RemoteChecker struct {
	endpoint string
	client   *http.Client
}

// NewRemoteChecker creates a checker against the given endpoint.
func NewRemoteChecker(endpoint string) *RemoteChecker {
	return &RemoteChecker{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type remoteRequest struct {
	Email string `json:"email"`
}

type remoteResponse struct {
	Subscription *RemoteSubscription `json:"subscription"`
}

// RemoteSubscription is the service's view of an account.
type RemoteSubscription struct {
	Tier      Tier   `json:"tier"`
	Status    string `json:"status"`
	ExpiresAt int64  `json:"expires_at,omitempty"` // unix millis, 0 for none
}

// Check queries the service for the account's subscription.
func (c *RemoteChecker) Check(ctx context.Context, email string) (*RemoteSubscription, error) {
	body, err := json.Marshal(remoteRequest{Email: strings.ToLower(email)})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subscription check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subscription check: status %d", resp.StatusCode)
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("subscription check: decode: %w", err)
	}
	if out.Subscription == nil {
		return nil, fmt.Errorf("subscription check: empty response")
	}
	return out.Subscription, nil
}

// Sync refreshes the local tier from the subscription service. A
// failed check leaves the local state untouched.
func (m *Meter) Sync(ctx context.Context, checker *RemoteChecker, email string) error {
	if checker == nil || email == "" {
		return nil
	}

	sub, err := checker.Check(ctx, email)
	if err != nil {
		m.log.Debug().Err(err).Msg("subscription check failed, keeping local state")
		return err
	}

	if sub.Tier == TierPro && sub.Status == "active" {
		var expires time.Time
		if sub.ExpiresAt > 0 {
			expires = time.UnixMilli(sub.ExpiresAt)
		}
		return m.ActivatePro(expires)
	}
	return m.Deactivate()
}
