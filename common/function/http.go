package function

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowforge/engine/common/security"
	"github.com/flowforge/engine/common/value"
)

// HTTPHandler is the built-in "http" Function handler: it issues a single
// HTTP request described by params and returns the response as a Value.
type HTTPHandler struct {
	Client    *http.Client
	validator *security.URLValidator
}

func NewHTTPHandler() *HTTPHandler {
	return &HTTPHandler{
		Client:    &http.Client{Timeout: 30 * time.Second},
		validator: security.NewURLValidator(),
	}
}

func (h *HTTPHandler) Name() string { return "http" }

// Validate requires "url" to be present in the (pre-interpolation)
// parameter template; url may itself be a "${var}" marker, so only
// presence and a non-empty method-if-given are checked here.
func (h *HTTPHandler) Validate(params value.Value) error {
	if params.Kind() != value.KindObject {
		return fmt.Errorf("http: params must be an object")
	}
	urlVal, ok := params.Get("url")
	if !ok || urlVal.Kind() != value.KindString || urlVal.AsString() == "" {
		return fmt.Errorf("http: params.url is required")
	}
	if methodVal, ok := params.Get("method"); ok && methodVal.Kind() != value.KindString {
		return fmt.Errorf("http: params.method must be a string")
	}
	return nil
}

// Execute performs the request. params is the already-interpolated
// parameter object: url, optional method (default GET), optional payload.
func (h *HTTPHandler) Execute(ctx context.Context, params value.Value, rc RuntimeContext) (value.Value, error) {
	urlVal, _ := params.Get("url")
	url := urlVal.AsString()

	// params is already interpolated by the time Execute runs, so url may
	// be entirely author/${var}-controlled; validate the resolved address
	// on every call rather than trusting whatever passed Validate at
	// compile time.
	if err := h.validator.Validate(url); err != nil {
		return value.Null(), fmt.Errorf("http: blocked url %q: %w", url, err)
	}

	method := "GET"
	if m, ok := params.Get("method"); ok && m.AsString() != "" {
		method = strings.ToUpper(m.AsString())
	}

	var body io.Reader
	if payload, ok := params.Get("payload"); ok && !payload.IsNull() {
		b, err := json.Marshal(payload.ToNative())
		if err != nil {
			return value.Null(), fmt.Errorf("http: marshal payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return value.Null(), fmt.Errorf("http: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "flowforge-engine/1.0")

	start := time.Now()
	resp, err := h.Client.Do(req)
	if err != nil {
		return value.Null(), fmt.Errorf("http: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return value.Null(), fmt.Errorf("http: read response: %w", err)
	}
	duration := time.Since(start)

	var decodedBody value.Value
	if v, err := value.FromJSON(respBody); err == nil {
		decodedBody = v
	} else {
		decodedBody = value.String(string(respBody))
	}

	headers := map[string]value.Value{}
	for k := range resp.Header {
		headers[k] = value.String(resp.Header.Get(k))
	}

	result := map[string]value.Value{
		"status_code": value.Int(int64(resp.StatusCode)),
		"headers":     value.Object(headers),
		"body":        decodedBody,
		"duration_ms": value.Int(duration.Milliseconds()),
		"url":         value.String(url),
		"method":      value.String(method),
	}

	if resp.StatusCode >= 400 {
		return value.Object(result), fmt.Errorf("http: %s %s returned status %d", method, url, resp.StatusCode)
	}

	return value.Object(result), nil
}
