package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"
)

const defaultAddr = "127.0.0.1:8080"

func main() {
	addr := normalizeAddr(os.Getenv("CREDVAULT_LISTEN_ADDR"))
	if err := check(context.Background(), "http://"+addr, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "unhealthy: %v\n", err)
		os.Exit(1)
	}
}

// healthBody is the subset of the health response the checker inspects.
type healthBody struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// check queries baseURL's health endpoint. It fails on transport errors,
// non-200 responses and a non-ok reported status. Warnings that do not make
// the service unhealthy are written to warn.
func check(ctx context.Context, baseURL string, warn io.Writer) error {
	client := &http.Client{Timeout: 2 * time.Second}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/health", nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var body healthBody
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && body.Database != "" {
			return fmt.Errorf("status %d (database %s)", resp.StatusCode, body.Database)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		fmt.Fprintf(warn, "health response not understood: %v\n", decodeErr)
		return nil
	}
	if body.Status != "ok" {
		return fmt.Errorf("reported status %q", body.Status)
	}

	return nil
}

// normalizeAddr ensures the healthcheck connects to loopback rather than the
// bind-all address. Docker containers bind 0.0.0.0 but the healthcheck runs
// inside the same container, so loopback is reachable and more correct.
func normalizeAddr(raw string) string {
	if raw == "" {
		return defaultAddr
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return defaultAddr
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
