package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/nexd/nexd/internal/collab"
	"github.com/nexd/nexd/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, "helper-1")
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New("localhost:8080", "")
	require.Error(t, err)
	_, err = New("ftp://example.org", "")
	require.Error(t, err)
}

func TestOpenHelpRequestsEncodesQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, PathHelpRequests, r.URL.Path)
		require.Equal(t, "Bearer helper-1", r.Header.Get("Authorization"))
		_, err := uuid.Parse(r.Header.Get(HeaderRequestID))
		require.NoError(t, err)

		q := r.URL.Query()
		require.Equal(t, "me", q.Get(QueryUserID))
		require.Equal(t, "true", q.Get(QueryExcludeUserID))
		require.Equal(t, []string{"12345"}, q[QueryZipCode])
		require.Equal(t, []string{"pending"}, q[QueryStatus])
		writeJSON(w, http.StatusOK, []model.HelpRequest{{ID: 4, ZipCode: "12345", Status: model.StatusPending}})
	})

	got, err := c.OpenHelpRequests(context.Background(), collab.OpenRequestsQuery{
		UserID:        "me",
		ExcludeUserID: true,
		ZipCodes:      []string{"12345"},
		Status:        []model.RequestStatus{model.StatusPending},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(4), got[0].ID)
}

func TestOpenHelpRequestsWithoutZip(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.URL.Query()[QueryZipCode]
		require.False(t, ok)
		writeJSON(w, http.StatusOK, nil)
	})
	got, err := c.OpenHelpRequests(context.Background(), collab.OpenRequestsQuery{UserID: "me"})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestApplyToWorkflowRoutes(t *testing.T) {
	var calls []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		w.WriteHeader(http.StatusNoContent)
	})
	listID := int64(3)
	req := model.HelpRequest{ID: 42}

	require.NoError(t, c.ApplyToWorkflow(context.Background(), req, collab.WorkflowSnapshot{}, collab.ApplyAdd))
	require.NoError(t, c.ApplyToWorkflow(context.Background(), req, collab.WorkflowSnapshot{ActiveListID: &listID}, collab.ApplyRemove))
	require.Equal(t, []string{
		"PUT /help-lists/active/help-requests/42?",
		"DELETE /help-lists/active/help-requests/42?helpListId=3",
	}, calls)
}

func TestSearchAndCreateArticles(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			q := r.URL.Query()
			require.Equal(t, "mil", q.Get(QueryStartsWith))
			require.Equal(t, "5", q.Get(QueryLimit))
			require.Equal(t, "de", q.Get(QueryLanguage))
			require.Equal(t, "false", q.Get(QueryOnlyVerified))
			writeJSON(w, http.StatusOK, []model.Article{{ID: 1, Name: "Milch", UnitIDOrder: []int64{7, 3}}})
		case http.MethodPost:
			require.Equal(t, "application/json", r.Header.Get("Content-Type"))
			var body CreateArticleRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			writeJSON(w, http.StatusCreated, model.Article{ID: 9, Name: body.Name, Language: body.Language})
		}
	})

	found, err := c.SearchArticles(context.Background(), collab.ArticleQuery{Limit: 5, StartsWith: "mil", Language: "de"})
	require.NoError(t, err)
	require.Equal(t, []int64{7, 3}, found[0].UnitIDOrder)

	created, err := c.CreateArticle(context.Background(), "Hefe", "de")
	require.NoError(t, err)
	require.Equal(t, model.Article{ID: 9, Name: "Hefe", Language: "de"}, created)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   error
	}{
		{http.StatusNotFound, collab.ErrNotFound},
		{http.StatusConflict, collab.ErrConflict},
		{http.StatusBadRequest, collab.ErrValidation},
		{http.StatusUnprocessableEntity, collab.ErrValidation},
		{http.StatusTooManyRequests, collab.ErrRequestFailed},
		{http.StatusInternalServerError, collab.ErrRequestFailed},
	}
	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, tc.status, ErrorResponse{Error: "nope"})
		})
		_, err := c.ActiveHelpList(context.Background())
		require.ErrorIs(t, err, tc.kind, "status %d", tc.status)

		var apiErr *collab.Error
		require.True(t, errors.As(err, &apiErr))
		require.Equal(t, tc.status, apiErr.Status)
		require.Equal(t, "nope", apiErr.Message)
		require.Equal(t, "ActiveHelpList", apiErr.Op)
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c, err := New(srv.URL, "")
	require.NoError(t, err)

	_, err = c.FindCurrentUser(context.Background())
	require.ErrorIs(t, err, collab.ErrRequestFailed)
}

func TestUpdateCurrentUserSendsBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, PathCurrentUser, r.URL.Path)
		var update collab.UserUpdate
		require.NoError(t, json.NewDecoder(r.Body).Decode(&update))
		writeJSON(w, http.StatusOK, model.User{ID: "helper-1", FirstName: update.FirstName, ZipCode: update.ZipCode})
	})
	u, err := c.UpdateCurrentUser(context.Background(), collab.UserUpdate{FirstName: "Max", ZipCode: "10115"})
	require.NoError(t, err)
	require.Equal(t, "10115", u.ZipCode)
}

func TestCallsAreTracedAndPropagated(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	parents := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parents <- r.Header.Get("traceparent")
		if r.URL.Path == PathActiveList {
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "down"})
			return
		}
		writeJSON(w, http.StatusOK, model.User{ID: "helper-1"})
	}))
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, "helper-1",
		WithTracerProvider(tp),
		WithPropagator(propagation.TraceContext{}),
	)
	require.NoError(t, err)

	_, err = c.FindCurrentUser(context.Background())
	require.NoError(t, err)
	_, err = c.ActiveHelpList(context.Background())
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	require.Len(t, parents, 2)
	close(parents)
	for i, want := range []string{"nexd.FindCurrentUser", "nexd.ActiveHelpList"} {
		span := spans[i]
		require.Equal(t, want, span.Name())
		require.Equal(t, trace.SpanKindClient, span.SpanKind())

		// traceparent is version-traceid-spanid-flags.
		sc := span.SpanContext()
		require.Equal(t, "00-"+sc.TraceID().String()+"-"+sc.SpanID().String()+"-01", <-parents)
	}
	require.Equal(t, codes.Unset, spans[0].Status().Code)
	require.Equal(t, codes.Error, spans[1].Status().Code)
	require.NotEqual(t, spans[0].SpanContext().TraceID(), spans[1].SpanContext().TraceID())
}

func TestCallJoinsCallerTrace(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []model.Unit{})
	}))
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, "", WithTracerProvider(tp), WithPropagator(propagation.TraceContext{}))
	require.NoError(t, err)

	ctx, parent := tp.Tracer("test").Start(context.Background(), "refresh")
	_, err = c.ListUnits(ctx, "de")
	require.NoError(t, err)
	parent.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "nexd.ListUnits", spans[0].Name())
	require.Equal(t, parent.SpanContext().TraceID(), spans[0].SpanContext().TraceID())
	require.Equal(t, parent.SpanContext().SpanID(), spans[0].Parent().SpanID())
}
