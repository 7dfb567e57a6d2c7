package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"webhook-dispatcher/internal/models"
)

const maxRetries = 3

var retryInterval = 2 * time.Second

// Client talks to the registration API on behalf of one API client.
type Client struct {
	ID           string
	APIKey       string
	APIKeyHeader string
	BaseURL      string
	HTTP         *http.Client
}

func (c *Client) makeRequest(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error marshaling request body: %w", err)
		}
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			log.Printf("Retrying request (attempt %d/%d)", i+1, maxRetries)
			select {
			case <-time.After(retryInterval):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, bodyReader)
		if err != nil {
			return nil, err
		}
		req.Header.Set(c.APIKeyHeader, c.APIKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		// Only retry on 5xx errors
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %s", resp.Status)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, lastErr)
}

func (c *Client) listWebHooks(ctx context.Context) ([]models.WebHook, error) {
	resp, err := c.makeRequest(ctx, http.MethodGet, "/api/webhooks/registrations", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, unexpected(resp)
	}
	var hooks []models.WebHook
	if err := json.NewDecoder(resp.Body).Decode(&hooks); err != nil {
		return nil, fmt.Errorf("error decoding registrations: %w", err)
	}
	return hooks, nil
}

// Sync points every registration tagged with description at uri, or
// registers a new one when the client has none. It returns the ids it
// touched.
func (c *Client) Sync(ctx context.Context, uri, description string, filters []string) ([]string, error) {
	hooks, err := c.listWebHooks(ctx)
	if err != nil {
		return nil, err
	}

	var ids []string
	for i := range hooks {
		w := hooks[i]
		if w.Description != description {
			continue
		}
		if w.WebHookURI == uri && !w.IsPaused {
			log.Printf("Webhook %s already points at %s", w.ID, uri)
			ids = append(ids, w.ID)
			continue
		}
		w.WebHookURI = uri
		w.IsPaused = false
		if err := c.save(ctx, http.MethodPut, "/api/webhooks/registrations/"+w.ID, &w, http.StatusOK); err != nil {
			return ids, fmt.Errorf("failed to update webhook %s: %w", w.ID, err)
		}
		ids = append(ids, w.ID)
	}
	if len(ids) > 0 {
		return ids, nil
	}

	w := &models.WebHook{WebHookURI: uri, Description: description, Filters: filters}
	if err := c.save(ctx, http.MethodPost, "/api/webhooks/registrations", w, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("failed to register webhook: %w", err)
	}
	return []string{w.ID}, nil
}

// save sends w and decodes the stored registration back into it.
func (c *Client) save(ctx context.Context, method, endpoint string, w *models.WebHook, want int) error {
	resp, err := c.makeRequest(ctx, method, endpoint, w)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return unexpected(resp)
	}
	return json.NewDecoder(resp.Body).Decode(w)
}

func unexpected(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("unexpected response: status=%s body=%s", resp.Status, string(bodyBytes))
}
