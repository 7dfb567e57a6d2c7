// Command register points a set of API clients' webhook registrations at a
// callback URL, typically a local tunnel during development.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const ngrokAPIURL = "http://127.0.0.1:4040/api/tunnels"

type NgrokTunnels struct {
	Tunnels []struct {
		PublicURL string `json:"public_url"`
	} `json:"tunnels"`
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to load .env: %v", err)
	}

	apiKeysEnv := os.Getenv("CLIENT_API_KEYS")
	if apiKeysEnv == "" {
		log.Fatal("CLIENT_API_KEYS environment variable is required")
	}

	baseURL := getenv("WEBHOOK_API_URL", "http://localhost:8080")
	header := getenv("API_KEY_HEADER", "X-API-Key")
	description := getenv("WEBHOOK_DESCRIPTION", "dev tunnel")
	filters := splitList(os.Getenv("WEBHOOK_FILTERS"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	target := os.Getenv("TARGET_URL")
	if target == "" {
		publicURL, err := getNgrokURL(ctx)
		if err != nil {
			log.Fatalf("TARGET_URL is not set and no ngrok tunnel was found: %v", err)
		}
		target = strings.TrimRight(publicURL, "/") + "/api/webhooks/incoming/" + getenv("RECEIVER", "default")
	}
	log.Printf("Target URL: %s", target)

	httpClient := &http.Client{Timeout: 10 * time.Second}
	clients, err := parseClients(apiKeysEnv)
	if err != nil {
		log.Fatal(err)
	}

	failed := 0
	for _, c := range clients {
		c.BaseURL = strings.TrimRight(baseURL, "/")
		c.APIKeyHeader = header
		c.HTTP = httpClient

		ids, err := c.Sync(ctx, target, description, filters)
		if err != nil {
			log.Printf("Failed to sync webhooks for %s: %v", c.ID, err)
			failed++
			continue
		}
		log.Printf("Synced %d webhook(s) for %s: %s", len(ids), c.ID, strings.Join(ids, ", "))
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// parseClients reads "client:key,client:key".
func parseClients(env string) ([]*Client, error) {
	var clients []*Client
	for _, pair := range strings.Split(env, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid client config %q, want client:key", pair)
		}
		clients = append(clients, &Client{ID: parts[0], APIKey: parts[1]})
	}
	return clients, nil
}

func getNgrokURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ngrokAPIURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var tunnels NgrokTunnels
	if err := json.NewDecoder(resp.Body).Decode(&tunnels); err != nil {
		return "", err
	}
	for _, t := range tunnels.Tunnels {
		if strings.HasPrefix(t.PublicURL, "https://") {
			return t.PublicURL, nil
		}
	}
	if len(tunnels.Tunnels) == 0 {
		return "", fmt.Errorf("no ngrok tunnels found")
	}
	return tunnels.Tunnels[0].PublicURL, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
