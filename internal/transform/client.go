// Package transform talks to the upstream media-transformation endpoint.
package transform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vidproxy/vidproxy/internal/domain/model"
	"github.com/vidproxy/vidproxy/internal/domain/repository"
	"github.com/vidproxy/vidproxy/internal/infrastructure/metrics"
)

// ErrorHeader carries the upstream numeric error code as "err=NNNN".
const ErrorHeader = "Cf-Resized"

// defaultTimeout bounds a transform fetch. Transforms inherit the request
// deadline but keep at least this much room even when the client is slow.
const defaultTimeout = 30 * time.Second

// errorCodes maps upstream numeric codes to client-facing semantics.
var errorCodes = map[int]model.TransformError{
	9411: {Code: 9411, Status: http.StatusBadRequest, Message: "invalid input"},
	9412: {Code: 9412, Status: http.StatusRequestEntityTooLarge, Message: "input too large"},
	9413: {Code: 9413, Status: http.StatusRequestEntityTooLarge, Message: "input duration too long"},
	9421: {Code: 9421, Status: http.StatusGatewayTimeout, Retryable: true, Message: "transform request timed out"},
	9422: {Code: 9422, Status: http.StatusTooManyRequests, Retryable: true, Message: "transform rate limited"},
	9423: {Code: 9423, Status: http.StatusBadGateway, Retryable: true, Message: "transform internal error"},
	9424: {Code: 9424, Status: http.StatusBadGateway, Retryable: true, Message: "transform could not reach origin"},
}

// ClientConfig holds configuration for the transform client.
type ClientConfig struct {
	// BasePath is the transform endpoint prefix, e.g.
	// "https://gateway.example/cdn-cgi/media".
	BasePath string
	Timeout  time.Duration
}

// Client implements repository.TransformClient over HTTP.
type Client struct {
	basePath   string
	httpClient *http.Client
	timeout    time.Duration
}

var _ repository.TransformClient = (*Client)(nil)

// NewClient creates a transform client.
func NewClient(httpClient *http.Client, cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		basePath:   strings.TrimRight(cfg.BasePath, "/"),
		httpClient: httpClient,
		timeout:    cfg.Timeout,
	}
}

// Transform performs the upstream transformation fetch for originURL with the
// given options.
func (c *Client) Transform(ctx context.Context, originURL string, opts model.TransformOptions) (*repository.TransformResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	transformURL := c.BuildURL(originURL, opts)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, transformURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build transform request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.TransformDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TransformRequestsTotal.WithLabelValues(metrics.TransformStatusError).Inc()
		return nil, fmt.Errorf("transform fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			metrics.TransformRequestsTotal.WithLabelValues(metrics.TransformStatusError).Inc()
			return nil, fmt.Errorf("read transform body: %w", err)
		}
		metrics.TransformRequestsTotal.WithLabelValues(metrics.TransformStatusOK).Inc()
		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return &repository.TransformResult{Body: body, ContentType: contentType}, nil
	}

	terr := classifyError(resp)
	if terr.Retryable {
		metrics.TransformRequestsTotal.WithLabelValues(metrics.TransformStatusRetryableError).Inc()
	} else {
		metrics.TransformRequestsTotal.WithLabelValues(metrics.TransformStatusError).Inc()
	}
	return nil, terr
}

// classifyError maps a non-2xx transform response to a TransformError, using
// the provider error header when present.
func classifyError(resp *http.Response) *model.TransformError {
	if code, ok := parseErrorHeader(resp.Header.Get(ErrorHeader)); ok {
		if known, ok := errorCodes[code]; ok {
			e := known
			return &e
		}
		return &model.TransformError{
			Code:      code,
			Status:    resp.StatusCode,
			Retryable: resp.StatusCode >= 500,
			Message:   fmt.Sprintf("transform error code %d", code),
		}
	}
	return &model.TransformError{
		Status:    resp.StatusCode,
		Retryable: resp.StatusCode >= 500,
		Message:   fmt.Sprintf("transform returned status %d", resp.StatusCode),
	}
}

func parseErrorHeader(value string) (int, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	// Header value has the shape "err=9422".
	value = strings.TrimPrefix(value, "err=")
	code, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return code, true
}

// BuildURL serializes the options into the upstream URL:
// {basePath}/{param=value,...}/{encodedOriginUrl}[?v=N].
// Parameters appear in fixed order and only when set; the version query is
// appended only past the first version, as the sole upstream cache buster.
func (c *Client) BuildURL(originURL string, opts model.TransformOptions) string {
	params := make([]string, 0, 12)
	add := func(name, value string) {
		if value != "" {
			params = append(params, name+"="+value)
		}
	}
	addInt := func(name string, value int) {
		if value > 0 {
			params = append(params, name+"="+strconv.Itoa(value))
		}
	}

	add("mode", opts.Mode.String())
	addInt("width", opts.Width)
	addInt("height", opts.Height)
	add("format", opts.Format)
	add("quality", opts.Quality)
	if opts.Mode == model.ModeVideo || opts.Mode == model.ModeAudio {
		add("compression", opts.Compression)
	}
	if opts.Mode == model.ModeFrame || opts.Mode == model.ModeSpritesheet {
		add("time", opts.Time)
		add("duration", opts.Duration)
		addInt("cols", opts.Cols)
		addInt("rows", opts.Rows)
		add("interval", opts.Interval)
	}

	u := c.basePath + "/" + strings.Join(params, ",") + "/" + url.QueryEscape(originURL)
	if opts.Version > 1 {
		u += "?v=" + strconv.Itoa(opts.Version)
	}
	return u
}
