package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mbaxter/stampede/internal/behavior"
	"github.com/mbaxter/stampede/internal/tracing"
)

// maxRetainedBodyBytes caps the response snippet kept on an outcome for
// response checks; the rest of the body is drained and only counted.
const maxRetainedBodyBytes = 16 * 1024

// Executor issues single HTTP requests and turns each into a structured
// outcome. It never retries; retry semantics, if wanted, belong to a wrapping
// task policy, not the transport.
type Executor struct {
	client *http.Client
	target Target
	tracer trace.Tracer
}

// NewExecutor creates an executor for the given target.
func NewExecutor(target Target) (*Executor, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	return &Executor{
		client: NewClient(0),
		target: target,
	}, nil
}

// WithTracer enables a span per executed request, including W3C trace-context
// header injection.
func (x *Executor) WithTracer(tracer trace.Tracer) *Executor {
	x.tracer = tracer
	return x
}

// Execute issues one request described by spec under the given per-call
// timeout (0 falls back to the target default) and returns the outcome.
// Transport failures and timeouts surface as an outcome with ErrorKind set
// and no status code; they are never returned as Go errors because a failed
// request is still a recordable result.
func (x *Executor) Execute(ctx context.Context, category string, spec behavior.RequestSpec, timeout time.Duration) behavior.Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		timeout = x.target.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	outcome := behavior.Outcome{
		Category:  category,
		Timestamp: time.Now(),
	}

	var span trace.Span
	if x.tracer != nil {
		ctx, span = tracing.StartRequestSpan(ctx, x.tracer, spec.Method, category)
	}

	start := time.Now()
	req, err := x.buildRequest(ctx, spec)
	if err != nil {
		outcome.Latency = time.Since(start)
		outcome.ErrorKind = behavior.ErrorKindConnection
		x.endSpan(span, err, outcome)
		return outcome
	}

	resp, err := x.client.Do(req)
	outcome.Latency = time.Since(start)
	if err != nil {
		outcome.ErrorKind = errorKind(ctx, err)
		outcome.Cancelled = outcome.ErrorKind == behavior.ErrorKindCanceled
		x.endSpan(span, err, outcome)
		return outcome
	}
	defer resp.Body.Close()

	outcome.StatusCode = resp.StatusCode

	snippet := &bytes.Buffer{}
	read, err := io.Copy(snippet, io.LimitReader(resp.Body, maxRetainedBodyBytes))
	if err == nil {
		var rest int64
		rest, err = io.Copy(io.Discard, resp.Body)
		read += rest
	}
	outcome.BodyLength = read
	outcome.Body = snippet.Bytes()
	if err != nil {
		// Body read failures after headers arrived are transport failures too.
		outcome.StatusCode = 0
		outcome.Body = nil
		outcome.ErrorKind = errorKind(ctx, err)
		outcome.Cancelled = outcome.ErrorKind == behavior.ErrorKindCanceled
	}
	outcome.Latency = time.Since(start)
	x.endSpan(span, err, outcome)
	return outcome
}

func (x *Executor) buildRequest(ctx context.Context, spec behavior.RequestSpec) (*http.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(spec.Method))
	if method == "" {
		method = http.MethodGet
	}

	target, err := x.resolveURL(spec.Path)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if len(spec.Body) > 0 {
		body = bytes.NewReader(spec.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if len(spec.Body) > 0 {
		req.ContentLength = int64(len(spec.Body))
		payload := spec.Body
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		}
	}

	for key, value := range x.target.DefaultHeaders {
		req.Header.Set(http.CanonicalHeaderKey(strings.TrimSpace(key)), value)
	}
	for key, value := range spec.Headers {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" || strings.ContainsAny(trimmed, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", trimmed)
		}
		req.Header.Set(http.CanonicalHeaderKey(trimmed), value)
	}

	if x.tracer != nil {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	return req, nil
}

func (x *Executor) resolveURL(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return trimmed, nil
	}
	base, err := url.Parse(strings.TrimSpace(x.target.BaseURL))
	if err != nil {
		return "", fmt.Errorf("invalid base target %q: %w", x.target.BaseURL, err)
	}
	if trimmed == "" {
		return base.String(), nil
	}
	rel, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", path, err)
	}
	return base.ResolveReference(rel).String(), nil
}

func (x *Executor) endSpan(span trace.Span, err error, o behavior.Outcome) {
	if span == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.Int("http.status_code", o.StatusCode),
		attribute.Int64("stampede.body_length", o.BodyLength),
	}
	tracing.EndSpan(span, err, attrs...)
}

// errorKind maps a transport error to its outcome label. A deadline that
// expired is always a timeout regardless of how the HTTP client wrapped it.
func errorKind(ctx context.Context, err error) behavior.ErrorKind {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return behavior.ErrorKindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return behavior.ErrorKindTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return behavior.ErrorKindTimeout
	}
	return behavior.ErrorKindConnection
}
