package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"firestige.xyz/tanakai/internal/core"
	"firestige.xyz/tanakai/internal/log"
)

const eventsPath = "/events/photon"

// HTTPOptions configures the collector endpoint.
type HTTPOptions struct {
	URL            string            `mapstructure:"url"`
	Path           string            `mapstructure:"path"`
	Timeout        time.Duration     `mapstructure:"timeout"`
	MaxRetries     uint              `mapstructure:"max_retries"`
	InitialBackoff time.Duration     `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration     `mapstructure:"max_backoff"`
	Headers        map[string]string `mapstructure:"headers"`
}

func DefaultHTTPOptions() HTTPOptions {
	return HTTPOptions{
		URL:            "http://localhost:8080",
		Path:           eventsPath,
		Timeout:        5 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

// HTTPSink posts each event as JSON to {url}{path}.
type HTTPSink struct {
	client   *http.Client
	endpoint string
	opts     HTTPOptions
	logger   log.Logger
}

func NewHTTPSink(opts HTTPOptions) (*HTTPSink, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("%w: http sink url is required", core.ErrConfigInvalid)
	}
	if !strings.HasPrefix(opts.URL, "http://") && !strings.HasPrefix(opts.URL, "https://") {
		return nil, fmt.Errorf("%w: http sink url %q must be http(s)", core.ErrConfigInvalid, opts.URL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultHTTPOptions().Timeout
	}
	path := opts.Path
	if path == "" {
		path = eventsPath
	}
	endpoint := strings.TrimRight(opts.URL, "/") + "/" + strings.TrimLeft(path, "/")

	return &HTTPSink{
		client:   &http.Client{Timeout: opts.Timeout},
		endpoint: endpoint,
		opts:     opts,
		logger:   log.GetLogger().WithField("sink", TypeHTTP),
	}, nil
}

// Endpoint returns the URL events are posted to.
func (s *HTTPSink) Endpoint() string {
	return s.endpoint
}

// Send posts ev, retrying transport errors, 429 and 5xx with exponential
// backoff. Other non-2xx answers fail immediately.
func (s *HTTPSink) Send(ctx context.Context, ev core.PhotonEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: encode event: %w", core.ErrTransport, err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialBackoff
	b.MaxInterval = s.opts.MaxBackoff

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := s.post(ctx, body)
		if err != nil && attempt > 1 {
			s.logger.WithError(err).Debugf("retry %d for %s", attempt-1, ev.Type)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(s.opts.MaxRetries+1))
	if err != nil {
		if errors.Is(err, core.ErrTransport) {
			return err
		}
		return fmt.Errorf("%w: %w", core.ErrTransport, err)
	}
	return nil
}

func (s *HTTPSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s returned %d", core.ErrTransport, s.endpoint, resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("%w: %s returned %d", core.ErrTransport, s.endpoint, resp.StatusCode))
	}
}

func (s *HTTPSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
