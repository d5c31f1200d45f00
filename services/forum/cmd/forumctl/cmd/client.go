package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/utafrali/EcommerceGo/pkg/httpclient"
	"github.com/utafrali/EcommerceGo/services/forum/internal/notice"
)

const serviceName = "forum-service"

// envelope is the response shape written by httputil.WriteJSON.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Notices []notice.Notice `json:"notices"`
}

// client calls the forum service API.
type client struct {
	baseURL string
	token   string
	http    *httpclient.Client
}

func newClient(opts *globalOptions) *client {
	return &client{
		baseURL: strings.TrimRight(opts.addr, "/"),
		token:   opts.token,
		http: httpclient.New(httpclient.Config{
			Name:            "forumctl",
			Timeout:         opts.timeout,
			MaxRetries:      2,
			RetryWaitMin:    200 * time.Millisecond,
			RetryWaitMax:    2 * time.Second,
			MaxConnsPerHost: 4,
		}),
	}
}

// do sends a request and decodes the envelope's data into out. It returns the
// notices attached to the response. Error responses are mapped to AppErrors.
func (c *client) do(ctx context.Context, method, path string, query url.Values, body, out any) ([]notice.Notice, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, httpclient.ParseResponseError(resp, serviceName)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("decode response data: %w", err)
		}
	}
	return env.Notices, nil
}
