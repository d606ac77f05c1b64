// Package transport provides the default HTTP implementation of the
// transport collaborator consumed by the request router. It performs the
// network call against a resolved instance address and folds every error
// into a classified outcome.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rideflow/gateway/internal/domain"
	"github.com/rideflow/gateway/pkg/logger"
)

// maxResponseBody caps how much of an upstream body is buffered per attempt.
const maxResponseBody = 4 << 20

// HTTPTransport implements domain.Transport over a shared http.Client.
// The per-attempt deadline comes from the caller's context; the client itself
// carries no timeout so the router stays in control of bounding.
type HTTPTransport struct {
	client *http.Client
	logger *logger.Logger
}

// NewHTTPTransport creates the default HTTP transport
func NewHTTPTransport(log *logger.Logger) *HTTPTransport {
	return &HTTPTransport{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			// Redirects are passed back to the caller untouched.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: log.WithField("component", "transport"),
	}
}

// RoundTrip forwards the request to the given instance address and returns a
// classified outcome. A canceled caller context is Canceled, a context
// deadline exceeded while awaiting the response is a Timeout, and any other
// network error is a TransportFailure. Any response received in time is a
// Success, whatever its status code.
func (t *HTTPTransport) RoundTrip(ctx context.Context, address string, req *http.Request) domain.Outcome {
	target, err := buildTargetURL(address, req.URL)
	if err != nil {
		return domain.Outcome{Kind: domain.OutcomeTransportFailure, Err: err}
	}

	outReq, err := http.NewRequestWithContext(ctx, req.Method, target, req.Body)
	if err != nil {
		return domain.Outcome{Kind: domain.OutcomeTransportFailure, Err: err}
	}
	copyHeader(outReq.Header, req.Header)
	outReq.Header.Set("X-Forwarded-Host", req.Host)
	if host, _, splitErr := net.SplitHostPort(req.RemoteAddr); splitErr == nil {
		outReq.Header.Set("X-Forwarded-For", host)
	}

	resp, err := t.client.Do(outReq)
	if err != nil {
		return classifyError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return classifyError(ctx, err)
	}

	return domain.Outcome{
		Kind: domain.OutcomeSuccess,
		Response: &domain.ResponseMeta{
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       body,
		},
	}
}

// classifyError folds a transport error into Canceled, Timeout or
// TransportFailure. The context state wins over whatever error the client
// wrapped it in: a caller that walked away produces Canceled, never a
// backend failure, while an expired attempt deadline is a Timeout.
func classifyError(ctx context.Context, err error) domain.Outcome {
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
		return domain.Outcome{Kind: domain.OutcomeCanceled, Err: err}
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return domain.Outcome{Kind: domain.OutcomeTimeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.Outcome{Kind: domain.OutcomeTimeout, Err: err}
	}

	return domain.Outcome{Kind: domain.OutcomeTransportFailure, Err: err}
}

// buildTargetURL resolves the instance address against the inbound URL
func buildTargetURL(address string, inbound *url.URL) (string, error) {
	base, err := url.Parse(address)
	if err != nil {
		return "", err
	}

	target := *base
	target.Path = singleJoiningSlash(base.Path, inbound.Path)
	target.RawQuery = inbound.RawQuery
	return target.String(), nil
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash && b != "":
		return a + "/" + b
	}
	return a + b
}

func copyHeader(dst, src http.Header) {
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}
