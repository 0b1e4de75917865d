package sinks

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

const defaultHTTPTimeout = 5 * time.Minute

// HTTPConfig contains configuration for the HTTP sink.
type HTTPConfig struct {
	URL      string
	Headers  map[string]string
	Timeout  time.Duration
	Insecure bool
}

// HTTPSink streams the archive to a URL with a single PUT request. Close
// waits for the response and fails on a non-2xx status.
type HTTPSink struct {
	ctx     context.Context
	url     *url.URL
	headers map[string]string
	client  *http.Client
}

type HTTPOption func(*HTTPSink)

func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPSink) {
		s.client = client
	}
}

func NewHTTPSink(ctx context.Context, cfg HTTPConfig, opts ...HTTPOption) (*HTTPSink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("url is required")
	}

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url '%s': %w", cfg.URL, err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("url must use http or https scheme, got: %s", parsedURL.Scheme)
	}

	sink := &HTTPSink{
		ctx:     ctx,
		url:     parsedURL,
		headers: cfg.Headers,
	}

	for _, opt := range opts {
		opt(sink)
	}

	if sink.client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultHTTPTimeout
		}

		transport := cleanhttp.DefaultPooledTransport()
		if cfg.Insecure {
			if transport.TLSClientConfig == nil {
				transport.TLSClientConfig = &tls.Config{}
			}

			transport.TLSClientConfig.InsecureSkipVerify = true
		}

		sink.client = &http.Client{
			Transport: transport,
			Timeout:   timeout,
		}
	}

	return sink, nil
}

func (s *HTTPSink) Name() string {
	return fmt.Sprintf("http(%s)", s.url.Host)
}

func (s *HTTPSink) Open(ext string) (io.WriteCloser, error) {
	pr, pw := io.Pipe()

	req, err := http.NewRequestWithContext(s.ctx, http.MethodPut, s.url.String(), pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeForExtension(ext))
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	done := make(chan error, 1)
	go func() {
		resp, err := s.client.Do(req)
		if err != nil {
			err = fmt.Errorf("failed to upload to %s: %w", s.url, err)
			pr.CloseWithError(err)
			done <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			err = fmt.Errorf("upload to %s returned %s", s.url, resp.Status)
		}
		pr.CloseWithError(err)
		done <- err
	}()

	return &pipeStream{pw: pw, done: done}, nil
}
