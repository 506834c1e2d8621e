package matrix

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/pkg/errors"

	"github.com/okian/pitchside/internal/domain/distance"
	"github.com/okian/pitchside/pkg/logger"
)

const (
	// DefaultBaseURL is the public distance-matrix host.
	DefaultBaseURL = "https://maps.googleapis.com"
	endpoint       = "/maps/api/distancematrix/json"
	maxErrorBody   = 512
	defaultTimeout = 10 * time.Second
)

// Client calls the distance-matrix API. It implements distance.MatrixService.
type Client struct {
	apiKey     string
	baseURL    *url.URL
	httpClient *http.Client
	logger     logger.Logger
}

var _ distance.MatrixService = (*Client)(nil)

type matrixQuery struct {
	Origins      []string `url:"origins" del:"|"`
	Destinations []string `url:"destinations" del:"|"`
	Mode         string   `url:"mode,omitempty"`
	Units        string   `url:"units,omitempty"`
	Key          string   `url:"key"`
}

// NewClient creates a client. An empty apiKey is a configuration error: the
// caller should leave the resolver unconfigured instead.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	base, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		apiKey:  apiKey,
		baseURL: base,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
		logger: logger.Default().Named("matrix"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Matrix requests distances for every origin/destination pair.
func (c *Client) Matrix(ctx context.Context, req distance.MatrixRequest) (distance.MatrixResponse, error) {
	reqURL, err := c.buildURL(req)
	if err != nil {
		return distance.MatrixResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return distance.MatrixResponse{}, errors.Wrap(err, "create matrix request")
	}

	var out distance.MatrixResponse
	if err := c.do(httpReq, &out); err != nil {
		c.logger.Debug(ctx, "matrix request failed",
			logger.Int("origins", len(req.Origins)),
			logger.Int("destinations", len(req.Destinations)),
			logger.Error(err),
		)
		return distance.MatrixResponse{}, errors.Wrap(err, "execute matrix request")
	}
	return out, nil
}

func (c *Client) buildURL(req distance.MatrixRequest) (string, error) {
	rel, err := url.Parse(endpoint)
	if err != nil {
		return "", errors.Wrap(err, "parse endpoint")
	}
	u := c.baseURL.ResolveReference(rel)

	v, err := query.Values(matrixQuery{
		Origins:      req.Origins,
		Destinations: req.Destinations,
		Mode:         string(req.Mode),
		Units:        "metric",
		Key:          c.apiKey,
	})
	if err != nil {
		return "", errors.Wrap(err, "encode query parameters")
	}
	u.RawQuery = v.Encode()
	return u.String(), nil
}

func (c *Client) do(req *http.Request, v any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "execute HTTP request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: status %d: %s", ErrHTTPStatus, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
