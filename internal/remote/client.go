// Package remote talks to the purchase order authority over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/observability/metrics"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
	"github.com/DikshantJangra/hoperxpharma-sub011/pkg/telemetry/correlation"
)

const maxErrorBody = 64 << 10

type Options struct {
	BaseURL     string
	Credentials Credentials
	HTTPClient  *http.Client
	Timeout     time.Duration
	Log         *zap.Logger
	Metrics     *metrics.Metrics
}

// Client implements domain.Authority.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	creds   Credentials
	log     *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type envelope[T any] struct {
	Data T `json:"data"`
}

func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid authority base url %q", opts.BaseURL)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: base,
		http:    httpClient,
		creds:   opts.Credentials,
		log:     log.Named("remote.client"),
		metrics: opts.Metrics,
		tracer:  otel.Tracer("pocomposer/remote"),
	}, nil
}

func (c *Client) Create(ctx context.Context, payload domain.OrderPayload) (domain.WriteResult, error) {
	var out envelope[domain.WriteResult]
	err := c.do(ctx, "create", http.MethodPost, "/orders", nil, payload, &out)
	return out.Data, err
}

func (c *Client) Update(ctx context.Context, id string, payload domain.OrderPayload) (domain.WriteResult, error) {
	var out envelope[domain.WriteResult]
	err := c.do(ctx, "update", http.MethodPut, "/orders/"+url.PathEscape(id), nil, payload, &out)
	return out.Data, err
}

func (c *Client) Autosave(ctx context.Context, id string, payload domain.OrderPayload) (domain.AutosaveResult, error) {
	var out envelope[domain.AutosaveResult]
	err := c.do(ctx, "autosave", http.MethodPut, "/orders/"+url.PathEscape(id)+"/autosave", nil, payload, &out)
	return out.Data, err
}

func (c *Client) Get(ctx context.Context, id string) (domain.RemoteOrder, error) {
	var out envelope[domain.RemoteOrder]
	err := c.do(ctx, "get", http.MethodGet, "/orders/"+url.PathEscape(id), nil, nil, &out)
	return out.Data, err
}

func (c *Client) Send(ctx context.Context, id string, req domain.SendRequest) (domain.TransitionResult, error) {
	var out envelope[domain.TransitionResult]
	err := c.do(ctx, "send", http.MethodPut, "/orders/"+url.PathEscape(id)+"/send", nil, req, &out)
	return out.Data, err
}

func (c *Client) RequestApproval(ctx context.Context, id string, req domain.ApprovalRequest) (domain.TransitionResult, error) {
	var out envelope[domain.TransitionResult]
	err := c.do(ctx, "request_approval", http.MethodPost, "/orders/"+url.PathEscape(id)+"/request-approval", nil, req, &out)
	return out.Data, err
}

func (c *Client) Suggestions(ctx context.Context, query domain.SuggestionQuery) ([]domain.Suggestion, error) {
	params := url.Values{}
	params.Set("store_id", query.StoreID)
	if query.SupplierID != "" {
		params.Set("supplier_id", query.SupplierID)
	}
	var out envelope[[]domain.Suggestion]
	err := c.do(ctx, "suggestions", http.MethodGet, "/orders/suggestions", params, nil, &out)
	return out.Data, err
}

func (c *Client) CreateTemplate(ctx context.Context, req domain.TemplateRequest) (domain.TemplateResult, error) {
	var out envelope[domain.TemplateResult]
	err := c.do(ctx, "create_template", http.MethodPost, "/templates", nil, req, &out)
	return out.Data, err
}

func (c *Client) LoadTemplate(ctx context.Context, id string) (domain.TemplateBody, error) {
	var out envelope[domain.TemplateBody]
	err := c.do(ctx, "load_template", http.MethodPost, "/templates/"+url.PathEscape(id)+"/load", nil, nil, &out)
	return out.Data, err
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) (err error) {
	ctx, cid := correlation.EnsureCorrelationID(ctx)
	ctx, span := c.tracer.Start(ctx, "authority."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("authority.operation", op),
	)
	start := time.Now()
	status := 0
	defer func() {
		c.metrics.ObserveRemoteRequest(ctx, op, status, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, op+" failed")
		}
		span.End()
	}()

	endpoint := *c.baseURL
	endpoint.Path = c.baseURL.Path + path
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(correlation.HeaderName, cid)
	if c.creds != nil {
		token, err := c.creds.Token(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w: %v", op, domain.ErrRemoteUnauthorized, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("authority request failed",
			zap.String("operation", op),
			zap.String("correlation_id", cid),
			zap.Error(err),
		)
		return &transportError{op: op, err: err}
	}
	defer resp.Body.Close()
	status = resp.StatusCode
	span.SetAttributes(attribute.Int("http.status_code", status))

	if status < 200 || status >= 300 {
		apiErr := decodeAPIError(resp)
		c.log.Info("authority rejected request",
			zap.String("operation", op),
			zap.String("correlation_id", cid),
			zap.Int("status", status),
			zap.String("code", apiErr.Code),
		)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &transportError{op: op, err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return apiErr
	}
	var payload errorResponse
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Type != "" {
		apiErr.Code = payload.Error.Type
		apiErr.Message = payload.Error.Message
	}
	return apiErr
}

var _ domain.Authority = (*Client)(nil)
