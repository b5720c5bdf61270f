package interaction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// Finding is one drug-interaction result from the external checker.
type Finding struct {
	Severity        string   `json:"severity"`
	Description     string   `json:"description"`
	Recommendations []string `json:"recommendations"`
}

// Checker calls an external drug-interaction service. This is a stand-in for
// a real pharmacological interaction database; no interaction logic lives in
// this process and results must not be treated as clinically meaningful
// without a genuine backing service.
type Checker interface {
	Check(ctx context.Context, medicationNames []string) ([]Finding, error)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type client struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
}

func NewClient(cfg Config) Checker {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "interaction-checker",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
	})

	return &client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		cb:      cb,
	}
}

type checkRequest struct {
	Medications []string `json:"medications"`
}

type checkResponse struct {
	Interactions []Finding `json:"interactions"`
}

func (c *client) Check(ctx context.Context, medicationNames []string) ([]Finding, error) {
	if len(medicationNames) < 2 {
		return nil, nil
	}

	body, err := json.Marshal(checkRequest{Medications: medicationNames})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal interaction request: %w", err)
	}

	result, err := c.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/interactions/check", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("interaction service returned status %d", resp.StatusCode)
		}

		var out checkResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("failed to decode interaction response: %w", err)
		}
		return out.Interactions, nil
	})
	if err != nil {
		return nil, fmt.Errorf("interaction check failed: %w", err)
	}

	return result.([]Finding), nil
}
