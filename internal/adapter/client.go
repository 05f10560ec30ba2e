package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"iotexplorer/internal/domain"
)

// maxResponseSize caps device response bodies
const maxResponseSize = 1 << 20

// StatusSuccessful is the value of the "status" field in accepted replies
const StatusSuccessful = "successful"

// DeviceClient issues single JSON requests against device control APIs.
// There are no retries: a failed call is reported and the next tick tries again.
type DeviceClient struct {
	httpClient *http.Client
}

// NewDeviceClient creates a client with a per-request timeout
func NewDeviceClient(timeout time.Duration) *DeviceClient {
	return &DeviceClient{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Response is a decoded device reply
type Response struct {
	Body   []byte
	Fields map[string]any
}

// Status returns the "status" field and whether it was present
func (r *Response) Status() (string, bool) {
	v, ok := r.Fields["status"]
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, true
}

// Do sends the request and decodes a JSON object reply. Network failures are
// domain.ErrTransport; bad status codes and undecodable bodies are
// domain.ErrProtocol.
func (c *DeviceClient) Do(ctx context.Context, method, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, domain.NewError(domain.ErrTransport, method, url, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewError(domain.ErrTransport, method, url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, domain.NewError(domain.ErrTransport, method, url, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return nil, domain.NewError(domain.ErrProtocol, method, url, fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, domain.NewError(domain.ErrProtocol, method, url, fmt.Errorf("decoding response: %w", err))
	}
	if fields == nil {
		return nil, domain.NewError(domain.ErrProtocol, method, url, fmt.Errorf("response is not a JSON object"))
	}

	return &Response{Body: body, Fields: fields}, nil
}
