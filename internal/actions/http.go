package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/renwick/stepflow/pkg/schema"
)

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultHTTPTimeout     = 30 * time.Second
)

// httpAction performs HTTP requests with JSON body handling.
type httpAction struct {
	client *http.Client
}

func newHTTPAction() *httpAction {
	return &httpAction{
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (a *httpAction) Name() string { return "http.request" }

func (a *httpAction) Description() string {
	return "Perform an HTTP request and return status, headers, and decoded body"
}

// Execute expects params:
//
//	url     (string, required)
//	method  (string, default GET)
//	headers (object of string, optional)
//	body    (any, optional) JSON-encoded unless it is a string
func (a *httpAction) Execute(ctx context.Context, params map[string]any) (any, error) {
	rawURL := stringParam(params, "url", "")
	if rawURL == "" {
		return nil, schema.NewError(schema.ErrCodeValidation,
			"http.request requires non-empty 'url' string parameter")
	}
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"http.request: invalid url %q: %s", rawURL, err.Error()).WithCause(err)
	}

	method := strings.ToUpper(stringParam(params, "method", http.MethodGet))

	var body io.Reader
	contentType := ""
	if raw, ok := params["body"]; ok && raw != nil {
		switch v := raw.(type) {
		case string:
			body = strings.NewReader(v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"http.request: encode body: %s", err.Error()).WithCause(err)
			}
			body = bytes.NewReader(encoded)
			contentType = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"http.request: build request: %s", err.Error()).WithCause(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for key, val := range mapParam(params, "headers") {
		if s, ok := val.(string); ok {
			req.Header.Set(key, s)
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStepExecution,
			"http.request: %s %s: %s", method, rawURL, err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxResponseBody))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStepExecution,
			"http.request: read response body: %s", err.Error()).WithCause(err)
	}

	// Decode JSON responses; anything else comes back as a string.
	var decoded any = string(raw)
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") && len(raw) > 0 {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			decoded = v
		}
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return map[string]any{
		"status":  resp.StatusCode,
		"headers": headers,
		"body":    decoded,
	}, nil
}
