// Package esapi talks to the external Equipment Strategy store. The
// update call is idempotent per idempotency key, which the dispatcher
// derives from the recommendation id.
package esapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Strategy struct {
	ID            string  `json:"id"`
	EquipmentID   string  `json:"equipment_id"`
	FrequencyDays float64 `json:"frequency_days"`
	Scope         string  `json:"scope"`
}

// StrategyUpdate carries the fields mutated on approval; nil fields
// are left untouched.
type StrategyUpdate struct {
	FrequencyDays *float64 `json:"frequency_days,omitempty"`
	Scope         *string  `json:"scope,omitempty"`
}

type Client interface {
	GetStrategy(ctx context.Context, id string) (Strategy, error)
	UpdateStrategy(ctx context.Context, id string, upd StrategyUpdate, idempotencyKey string) error
}

type HTTPClient struct {
	BaseURL string
	Timeout time.Duration
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{BaseURL: baseURL, Timeout: timeout}
}

type apiError struct {
	Message string `json:"message"`
}

func (c *HTTPClient) GetStrategy(ctx context.Context, id string) (Strategy, error) {
	client := &http.Client{Timeout: c.Timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/strategies/"+id, nil)
	if err != nil {
		return Strategy{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Strategy{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return Strategy{}, fmt.Errorf("strategy %s not found", id)
	}
	if resp.StatusCode != http.StatusOK {
		return Strategy{}, fmt.Errorf("get strategy: unexpected status %d", resp.StatusCode)
	}
	var out Strategy
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Strategy{}, err
	}
	return out, nil
}

func (c *HTTPClient) UpdateStrategy(ctx context.Context, id string, upd StrategyUpdate, idempotencyKey string) error {
	data, err := json.Marshal(upd)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: c.Timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.BaseURL+"/strategies/"+id, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var apiErr apiError
	_ = json.NewDecoder(resp.Body).Decode(&apiErr)
	if apiErr.Message != "" {
		return fmt.Errorf("update strategy: %s (status %d)", apiErr.Message, resp.StatusCode)
	}
	return fmt.Errorf("update strategy: unexpected status %d", resp.StatusCode)
}
