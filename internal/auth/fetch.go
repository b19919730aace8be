package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/desertthunder/melodyflow/internal/shared"
)

// Fetch performs an authenticated request against the streaming API.
//
// endpoint is either a path relative to the API base URL or an absolute URL.
// A non-nil body is sent as JSON. The response body is returned undecoded;
// a 204 or empty body yields nil.
//
// Before sending, a token within [RefreshThreshold] of expiry is refreshed. A
// 401 response triggers exactly one refresh and one retry. A refresh failure,
// a second 401 or a transport failure on the retry ends the session.
func (m *Manager) Fetch(ctx context.Context, method, endpoint string, body any) (json.RawMessage, error) {
	if m.needsRefresh() {
		if _, err := m.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	token := m.session.Auth().AccessToken
	if token == "" {
		return nil, fmt.Errorf("%w: no access token found", shared.ErrNotAuthenticated)
	}

	target := m.resolve(endpoint)
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	resp, err := m.send(ctx, method, target, payload, token)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		discard(resp)
		m.logger.Debug("access token rejected, refreshing", "endpoint", endpoint)

		token, err = m.Refresh(ctx)
		if err != nil {
			return nil, err
		}

		resp, err = m.send(ctx, method, target, payload, token)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, m.expire(ctx, fmt.Errorf("retry failed: %w", err))
		}
		if resp.StatusCode == http.StatusUnauthorized {
			discard(resp)
			return nil, m.expire(ctx, fmt.Errorf("access token rejected after refresh"))
		}
	}
	defer resp.Body.Close()

	return readResponse(resp)
}

func (m *Manager) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return strings.TrimRight(m.cfg.APIBaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

func (m *Manager) send(ctx context.Context, method, target string, payload []byte, token string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return m.client.Do(req)
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		return data, nil
	}
}

type errorBody struct {
	Error json.RawMessage `json:"error"`
	// token endpoint style
	Description string `json:"error_description"`
}

// readResponse maps a final response to its body or an [shared.APIError].
func readResponse(resp *http.Response) (json.RawMessage, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, shared.NewAPIError(resp.StatusCode, errorMessage(data))
	}

	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return json.RawMessage(data), nil
}

// errorMessage extracts a message from {"error":{"message":...}} or
// {"error":"code","error_description":...} bodies.
func errorMessage(data []byte) string {
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err != nil || len(eb.Error) == 0 {
		return ""
	}

	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(eb.Error, &nested); err == nil && nested.Message != "" {
		return nested.Message
	}

	if eb.Description != "" {
		return eb.Description
	}
	var code string
	if err := json.Unmarshal(eb.Error, &code); err == nil {
		return code
	}
	return ""
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
