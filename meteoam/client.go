package meteoam

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/icodeforyou/meteoam-go/location"
	"github.com/sony/gobreaker/v2"
)

const (
	DefaultURLTemplate = "https://api.meteoam.it/deda-meteograms/api/GetMeteogram/preset1/%s,%s"
	DefaultTimeout     = 60 * time.Second
)

// Payload is the raw response body of a successful meteogram request.
type Payload []byte

type Client struct {
	logger      *slog.Logger
	http        *http.Client
	urlTemplate string
	timeout     time.Duration
	breaker     *gobreaker.CircuitBreaker[Payload]
}

type Option func(*Client)

// WithURLTemplate overrides the endpoint. The template gets latitude and
// longitude, in that order, as %s verbs.
func WithURLTemplate(tmpl string) Option {
	return func(c *Client) {
		c.urlTemplate = tmpl
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBreaker sets how many consecutive failures open the circuit and for
// how long it stays open.
func WithBreaker(failures uint32, openFor time.Duration) Option {
	return func(c *Client) {
		c.breaker = newBreaker(failures, openFor)
	}
}

func NewClient(logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		logger:      logger,
		http:        &http.Client{},
		urlTemplate: DefaultURLTemplate,
		timeout:     DefaultTimeout,
		breaker:     newBreaker(5, 5*time.Minute),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newBreaker(failures uint32, openFor time.Duration) *gobreaker.CircuitBreaker[Payload] {
	return gobreaker.NewCircuitBreaker[Payload](gobreaker.Settings{
		Name:        "meteoam",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

func (c *Client) URL(coords location.Coordinates) string {
	return fmt.Sprintf(c.urlTemplate, coords.Latitude, coords.Longitude)
}

// Fetch performs a single GET for coords. It never retries.
func (c *Client) Fetch(ctx context.Context, coords location.Coordinates) (Payload, error) {
	url := c.URL(coords)
	c.logger.Debug("fetching meteogram from MeteoAM...", "url", url)

	payload, err := c.breaker.Execute(func() (Payload, error) {
		return c.get(ctx, url)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCannotConnect, err)
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) get(ctx context.Context, url string) (Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotConnect, err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrCannotConnect, res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, classify(ctx, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty response body", ErrCannotConnect)
	}

	return Payload(body), nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrCannotConnect, err)
}
