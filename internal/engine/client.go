package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/pixforge/imagine-api/internal/domain"
)

// doJSON performs one JSON request against a provider. Timeouts are bounded
// by the injected http.Client. Transport failures and non-2xx responses are
// reported as domain.ErrProviderRequest so the lifecycle manager can apply
// the retry policy.
func doJSON(
	ctx context.Context,
	client *http.Client,
	method, url string,
	headers map[string]string,
	body, out any,
) error {
	var reader io.Reader
	if body != nil {
		raw, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrProviderRequest, method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response from %s: %v", domain.ErrProviderRequest, url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s returned %d", domain.ErrProviderRequest, method, url, resp.StatusCode)
	}

	if out != nil {
		if err := sonic.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: undecodable response from %s: %v", domain.ErrProviderRequest, url, err)
		}
	}
	return nil
}

// jsonUnmarshal decodes provider wire JSON.
func jsonUnmarshal(raw json.RawMessage, out any) error {
	return sonic.Unmarshal(raw, out)
}

// progressFromRaw converts a provider progress field that may arrive as a
// number or a string like "57%" into a clamped percentage.
func progressFromRaw(raw json.RawMessage) int {
	if len(raw) == 0 {
		return domain.ProgressUnknown
	}
	var n int
	if err := sonic.Unmarshal(raw, &n); err == nil {
		return domain.ClampProgress(n)
	}
	var s string
	if err := sonic.Unmarshal(raw, &s); err == nil {
		return domain.ParseProgress(s)
	}
	return domain.ProgressUnknown
}

// errorFromRaw flattens a provider error field that may be a string, an
// object, or absent into a message.
func errorFromRaw(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := sonic.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
