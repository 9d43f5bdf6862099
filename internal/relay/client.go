// Package relay calls upstream JSON services that wrap their results in a
// {code, message, data} envelope.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	logpkg "github.com/benvon/process-rest/internal/logger"
	"github.com/benvon/process-rest/internal/request"
	"github.com/benvon/process-rest/internal/validation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// NoToken is passed as the token to send a request without Authorization.
const NoToken = "NoToken"

// DefaultTimeout bounds a single relay call when the caller supplies no client.
const DefaultTimeout = 30 * time.Second

// maxResponseBytes caps how much of an upstream response is read.
const maxResponseBytes = 10 << 20

// Envelope is the upstream response wrapper.
type Envelope struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Request describes one upstream call.
type Request struct {
	URL string `validate:"required,url"`
	// Params are appended to the URL query.
	Params url.Values
	// Body is ignored for GET. For KindJSON it is marshaled unless it is
	// already []byte, json.RawMessage or string; KindMultipart needs a Multipart.
	Body any
	// Kind defaults to KindJSON.
	Kind ContentKind `validate:"omitempty,oneof=json multipart"`
	// Token is a bearer token, or NoToken (or "") to omit Authorization.
	Token string
}

// Decoder turns the envelope's data field into a T.
type Decoder[T any] func(data json.RawMessage) (T, error)

// JSON decodes data into a T with encoding/json.
func JSON[T any]() Decoder[T] {
	return func(data json.RawMessage) (T, error) {
		var v T
		if len(data) == 0 {
			return v, nil
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return v, fmt.Errorf("decode response data: %w", err)
		}
		return v, nil
	}
}

// Raw returns data undecoded.
func Raw() Decoder[json.RawMessage] {
	return func(data json.RawMessage) (json.RawMessage, error) {
		return data, nil
	}
}

// Client performs relay calls. It never retries.
type Client struct {
	http   *http.Client
	log    *zap.Logger
	tracer trace.Tracer
}

// NewClient creates a relay client. A nil httpClient gets DefaultTimeout.
func NewClient(httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http:   httpClient,
		log:    log,
		tracer: otel.Tracer("github.com/benvon/process-rest/internal/relay"),
	}
}

// Get calls req.URL with GET and decodes the envelope data.
func Get[T any](ctx context.Context, c *Client, req Request, decode Decoder[T]) (T, error) {
	return call(ctx, c, http.MethodGet, req, decode)
}

// Post calls req.URL with POST and decodes the envelope data.
func Post[T any](ctx context.Context, c *Client, req Request, decode Decoder[T]) (T, error) {
	return call(ctx, c, http.MethodPost, req, decode)
}

func call[T any](ctx context.Context, c *Client, method string, req Request, decode Decoder[T]) (T, error) {
	var zero T
	data, err := c.Do(ctx, method, req)
	if err != nil {
		return zero, err
	}
	return decode(data)
}

// Do performs the call and returns the unwrapped envelope data.
func (c *Client) Do(ctx context.Context, method string, req Request) (json.RawMessage, error) {
	if err := validation.Validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid relay request: %w", err)
	}
	target, err := withParams(req.URL, req.Params)
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "relay "+method, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.full", redactQuery(target)),
	)

	data, err := c.do(ctx, method, target, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Warn("relay_request_failed",
			zap.String("method", method),
			zap.String("url", logpkg.SanitizeString(redactQuery(target), logpkg.MaxPathLength)),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		return nil, err
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, method, target string, req Request) (json.RawMessage, error) {
	kind := req.Kind
	if kind == "" {
		kind = KindJSON
	}

	var body io.Reader
	contentType := jsonContentType
	if method != http.MethodGet {
		var err error
		body, contentType, err = encodeBody(kind, req.Body)
		if err != nil {
			return nil, err
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build relay request: %w", err)
	}
	httpReq.Header.Set("Cache-Control", "no-store")
	httpReq.Header.Set("Pragma", "no-cache")
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if req.Token != "" && req.Token != NoToken {
		(&oauth2.Token{AccessToken: req.Token, TokenType: "Bearer"}).SetAuthHeader(httpReq)
	}
	if id := request.RequestIDFromContext(ctx); id != "" {
		httpReq.Header.Set(request.RequestIDHeader, id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("relay %s %s: %w", method, redactQuery(target), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read relay response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		var env Envelope
		if json.Unmarshal(raw, &env) == nil {
			statusErr.Message = env.Message
		}
		return nil, statusErr
	}

	return unwrap(raw)
}

// unwrap validates the envelope and returns its data.
func unwrap(raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrEmptyResponse
	}
	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}
	if env.Code == nil {
		return nil, &EnvelopeError{Code: 0, Message: "response envelope has no code"}
	}
	if *env.Code != 100 && *env.Code != 200 {
		return nil, &EnvelopeError{Code: *env.Code, Message: env.Message}
	}
	return env.Data, nil
}

func withParams(rawURL string, params url.Values) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	for key, values := range params {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redactQuery drops the query string, which may carry credentials, for logs
// and span attributes.
func redactQuery(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
