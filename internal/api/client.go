package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/nexd/nexd/internal/collab"
	"github.com/nexd/nexd/internal/model"
)

const tracerName = "github.com/nexd/nexd/internal/api"

// Client talks to the backend. It implements every collab interface.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	tracer trace.Tracer
	prop   propagation.TextMapPropagator
	logger *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// WithPropagator replaces the global propagator used to carry the trace
// context in request headers.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(c *Client) { c.prop = p }
}

// New returns a client for the backend at baseURL, authenticating with the
// bearer token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base:   base,
		token:  token,
		http:   &http.Client{Timeout: 30 * time.Second},
		tracer: otel.Tracer(tracerName),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Services exposes c as every collaborator.
func (c *Client) Services() collab.Services {
	return collab.Services{Users: c, HelpLists: c, HelpRequests: c, Workflow: c, Articles: c}
}

func (c *Client) FindCurrentUser(ctx context.Context) (model.User, error) {
	var u model.User
	err := c.do(ctx, "FindCurrentUser", http.MethodGet, PathCurrentUser, nil, nil, &u)
	return u, err
}

func (c *Client) UpdateCurrentUser(ctx context.Context, update collab.UserUpdate) (model.User, error) {
	var u model.User
	err := c.do(ctx, "UpdateCurrentUser", http.MethodPut, PathCurrentUser, nil, update, &u)
	return u, err
}

func (c *Client) ActiveHelpList(ctx context.Context) (model.HelpList, error) {
	var l model.HelpList
	err := c.do(ctx, "ActiveHelpList", http.MethodGet, PathActiveList, nil, nil, &l)
	return l, err
}

func (c *Client) OpenHelpRequests(ctx context.Context, q collab.OpenRequestsQuery) ([]model.HelpRequest, error) {
	params := url.Values{}
	if q.UserID != "" {
		params.Set(QueryUserID, q.UserID)
	}
	if q.ExcludeUserID {
		params.Set(QueryExcludeUserID, "true")
	}
	for _, zip := range q.ZipCodes {
		params.Add(QueryZipCode, zip)
	}
	for _, s := range q.Status {
		params.Add(QueryStatus, string(s))
	}
	var out []model.HelpRequest
	if err := c.do(ctx, "OpenHelpRequests", http.MethodGet, PathHelpRequests, params, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.HelpRequest{}
	}
	return out, nil
}

func (c *Client) SubmitHelpRequest(ctx context.Context, req collab.NewHelpRequest) (model.HelpRequest, error) {
	var created model.HelpRequest
	err := c.do(ctx, "SubmitHelpRequest", http.MethodPost, PathHelpRequests, nil, req, &created)
	return created, err
}

func (c *Client) ApplyToWorkflow(ctx context.Context, req model.HelpRequest, wf collab.WorkflowSnapshot, op collab.ApplyOp) error {
	method := http.MethodPut
	if op == collab.ApplyRemove {
		method = http.MethodDelete
	}
	var params url.Values
	if wf.ActiveListID != nil {
		params = url.Values{QueryHelpListID: {strconv.FormatInt(*wf.ActiveListID, 10)}}
	}
	path := PathListRequests + strconv.FormatInt(req.ID, 10)
	return c.do(ctx, "ApplyToWorkflow", method, path, params, nil, nil)
}

func (c *Client) SearchArticles(ctx context.Context, q collab.ArticleQuery) ([]model.Article, error) {
	params := url.Values{
		QueryStartsWith:   {q.StartsWith},
		QueryOnlyVerified: {strconv.FormatBool(q.OnlyVerified)},
	}
	if q.Limit > 0 {
		params.Set(QueryLimit, strconv.Itoa(q.Limit))
	}
	if q.Language != "" {
		params.Set(QueryLanguage, q.Language)
	}
	var out []model.Article
	if err := c.do(ctx, "SearchArticles", http.MethodGet, PathArticles, params, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Article{}
	}
	return out, nil
}

func (c *Client) ListUnits(ctx context.Context, language string) ([]model.Unit, error) {
	var params url.Values
	if language != "" {
		params = url.Values{QueryLanguage: {language}}
	}
	var out []model.Unit
	if err := c.do(ctx, "ListUnits", http.MethodGet, PathUnits, params, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Unit{}
	}
	return out, nil
}

func (c *Client) CreateArticle(ctx context.Context, name, language string) (model.Article, error) {
	var a model.Article
	err := c.do(ctx, "CreateArticle", http.MethodPost, PathArticles, nil, CreateArticleRequest{Name: name, Language: language}, &a)
	return a, err
}

func (c *Client) do(ctx context.Context, op, method, path string, params url.Values, body, out any) (err error) {
	requestID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "nexd."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
			attribute.String("nexd.request_id", requestID),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	u := *c.base
	u.Path = c.base.Path + path
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return &collab.Error{Op: op, Kind: collab.ErrRequestFailed, Err: fmt.Errorf("encode body: %w", err)}
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return &collab.Error{Op: op, Kind: collab.ErrRequestFailed, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set(HeaderRequestID, requestID)
	prop := c.prop
	if prop == nil {
		prop = otel.GetTextMapPropagator()
	}
	prop.Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &collab.Error{Op: op, Kind: collab.ErrRequestFailed, Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	c.logger.Debug("api call", "op", op, "method", method, "path", path, "status", resp.StatusCode,
		"request_id", requestID, "took", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &collab.Error{Op: op, Kind: kindFor(resp.StatusCode), Status: resp.StatusCode, Message: readMessage(resp.Body)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &collab.Error{Op: op, Kind: collab.ErrRequestFailed, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func kindFor(status int) error {
	switch status {
	case http.StatusNotFound:
		return collab.ErrNotFound
	case http.StatusConflict:
		return collab.ErrConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return collab.ErrValidation
	default:
		return collab.ErrRequestFailed
	}
}

func readMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4<<10))
	if err != nil {
		return ""
	}
	var e ErrorResponse
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(raw))
}
