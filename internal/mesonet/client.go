package mesonet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

var (
	errServerError = errors.New("server error")
	errCircuitOpen = errors.New("circuit breaker open")
)

// Client issues requests against the Mesonet API. Every call performs
// exactly one GET; nothing is retried or cached.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	circuit    *gobreaker.CircuitBreaker
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger used for parameter warnings and request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithCircuitBreaker fails calls fast after repeated transport or 5xx
// failures. A rejected call issues no request.
func WithCircuitBreaker(name string) Option {
	return func(c *Client) {
		c.circuit = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		})
	}
}

// NewClient creates a client for token.
func NewClient(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	c := &Client{
		token:      token,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get encodes params for service, performs the request and checks the
// embedded response code.
func (c *Client) Get(ctx context.Context, service Service, params Params) (*Response, error) {
	req, err := Build(service, params)
	if err != nil {
		return nil, err
	}
	for _, w := range req.Warnings {
		c.logger.Warn(w, "service", service)
	}

	req.Values.Set("token", c.token)
	rawURL := service.Endpoint(c.baseURL) + "?" + req.Values.Encode()

	c.logger.Debug("requesting mesonet data", "service", service, "url", RedactURL(rawURL))

	status, body, err := c.do(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("mesonet %s request to %s: %w", service, RedactURL(rawURL), err)
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode mesonet %s response (status %d, url %s): %w",
			service, status, RedactURL(rawURL), err)
	}
	out.Service = service
	out.URL = RedactURL(rawURL)
	out.Warnings = req.Warnings

	if !out.Summary.OK() {
		return nil, &APIError{
			Service: service,
			Code:    out.Summary.ResponseCode,
			Message: out.Summary.ResponseMessage,
			url:     rawURL,
		}
	}

	c.logger.Info("received mesonet data",
		"service", service,
		"stations", out.Summary.NumberOfObjects,
	)
	return &out, nil
}

func (c *Client) do(ctx context.Context, rawURL string) (int, []byte, error) {
	type result struct {
		status int
		body   []byte
	}

	call := func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
		}
		return result{status: resp.StatusCode, body: body}, nil
	}

	var (
		out interface{}
		err error
	)
	if c.circuit != nil {
		out, err = c.circuit.Execute(call)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
	} else {
		out, err = call()
	}
	if err != nil {
		return 0, nil, err
	}

	r := out.(result)
	return r.status, r.body, nil
}

// TimeSeries requests observations over a time range.
func (c *Client) TimeSeries(ctx context.Context, params Params) (*Response, error) {
	return c.Get(ctx, ServiceTimeSeries, params)
}

// Latest requests the most recent observation per station.
func (c *Client) Latest(ctx context.Context, params Params) (*Response, error) {
	return c.Get(ctx, ServiceLatest, params)
}

// NearestTime requests the observation nearest to attime.
func (c *Client) NearestTime(ctx context.Context, params Params) (*Response, error) {
	return c.Get(ctx, ServiceNearestTime, params)
}

// Precipitation requests derived precipitation totals or intervals.
func (c *Client) Precipitation(ctx context.Context, params Params) (*Response, error) {
	return c.Get(ctx, ServicePrecipitation, params)
}

// Latency requests station reporting latency.
func (c *Client) Latency(ctx context.Context, params Params) (*Response, error) {
	return c.Get(ctx, ServiceLatency, params)
}

// Metadata requests station metadata.
func (c *Client) Metadata(ctx context.Context, params Params) (*Response, error) {
	return c.Get(ctx, ServiceMetadata, params)
}

// QCTypes requests the quality control check catalogue.
func (c *Client) QCTypes(ctx context.Context, params Params) (*Response, error) {
	return c.Get(ctx, ServiceQCTypes, params)
}

// Variables requests the variable catalogue.
func (c *Client) Variables(ctx context.Context) (*Response, error) {
	return c.Get(ctx, ServiceVariables, nil)
}

// Networks requests network descriptions.
func (c *Client) Networks(ctx context.Context, params Params) (*Response, error) {
	return c.Get(ctx, ServiceNetworks, params)
}

// NetworkTypes requests network categories.
func (c *Client) NetworkTypes(ctx context.Context, params Params) (*Response, error) {
	return c.Get(ctx, ServiceNetworkTypes, params)
}
