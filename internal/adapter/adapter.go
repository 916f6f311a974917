// Package adapter contains the protocol clients that translate a normalized
// publish request into one external platform's API calls. The campaign
// runner only ever sees the Publisher interface and the typed PublishError;
// multi-step upload logic stays private to each adapter.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/postpilot/postpilot-backend/internal/model"
)

// Kind identifies which step of a publish sequence failed, so campaign
// logs stay diagnostic instead of opaque.
type Kind string

const (
	KindSessionOpenFailed Kind = "session_open_failed"
	KindChunkUploadFailed Kind = "chunk_upload_failed"
	KindFinalizeFailed    Kind = "finalize_failed"
	KindPublishFailed     Kind = "publish_failed"
	KindCredentialInvalid Kind = "credential_invalid"
	KindTimeout           Kind = "timeout"
)

// PublishError is the per-channel failure result. All kinds are recoverable
// locally: the runner logs them and the gap-filler retries the channel on a
// later tick.
type PublishError struct {
	Kind Kind
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

func newError(kind Kind, format string, args ...any) *PublishError {
	return &PublishError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// classify maps transport-level failures onto the taxonomy: timeouts get
// their own kind, everything else keeps the step's kind.
func classify(step Kind, err error) *PublishError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &PublishError{Kind: KindTimeout, Err: fmt.Errorf("%s: %w", step, err)}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &PublishError{Kind: KindTimeout, Err: fmt.Errorf("%s: %w", step, err)}
	}
	return &PublishError{Kind: step, Err: err}
}

func isTimeout(err error) bool {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Kind == KindTimeout
	}
	return false
}

// Publisher is the single capability every platform adapter implements.
// It returns the platform-assigned external post id on success.
type Publisher interface {
	Platform() string
	Publish(ctx context.Context, ch *model.Channel, item *model.ContentItem) (string, error)
}

// Registry maps platform names to their adapters.
type Registry struct {
	publishers map[string]Publisher
}

func NewRegistry(publishers ...Publisher) *Registry {
	r := &Registry{publishers: make(map[string]Publisher, len(publishers))}
	for _, p := range publishers {
		r.publishers[p.Platform()] = p
	}
	return r
}

func (r *Registry) For(platform string) (Publisher, bool) {
	p, ok := r.publishers[platform]
	return p, ok
}

// httpClient builds a client honoring the per-channel egress policy. The
// adapters are agnostic to whether a proxy is configured.
func httpClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	if proxyURL == "" {
		return &http.Client{Timeout: timeout}, nil
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(u)},
	}, nil
}
