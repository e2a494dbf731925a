package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/sqlite-rag/oracle"
	"github.com/viant/sqlite-rag/pipeline"
	"github.com/viant/sqlite-rag/vector"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type answerFunc func(ctx context.Context, question string) (*pipeline.Answer, error)

func (f answerFunc) AnswerQuery(ctx context.Context, question string) (*pipeline.Answer, error) {
	return f(ctx, question)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := New(Config{}, answerFunc(nil), nil)
	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestQuery(t *testing.T) {
	var got string
	s := New(Config{}, answerFunc(func(_ context.Context, q string) (*pipeline.Answer, error) {
		got = q
		return &pipeline.Answer{Text: "Blue.", Sources: []string{"data/a.pdf", "data/a.pdf"}}, nil
	}), nil)

	rec := do(t, s, http.MethodPost, "/query", `{"query":"What color is the sky?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "What color is the sky?", got)

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Blue.", resp.Answer)
	assert.Equal(t, []string{"data/a.pdf", "data/a.pdf"}, resp.Sources)
	assert.False(t, resp.NoMatch)
}

func TestQuery_NoMatch(t *testing.T) {
	s := New(Config{}, answerFunc(func(context.Context, string) (*pipeline.Answer, error) {
		return &pipeline.Answer{NoMatch: true}, nil
	}), nil)

	rec := do(t, s, http.MethodPost, "/query", `{"query":"anything"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"answer":"","sources":[],"no_match":true}`, rec.Body.String())
}

func TestQuery_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "malformed body", body: `{"query":`, status: http.StatusBadRequest},
		{name: "empty query", body: `{"query":"  "}`, status: http.StatusBadRequest},
		{name: "invalid argument", body: `{"query":"q"}`, err: vector.ErrInvalidArgument, status: http.StatusBadRequest},
		{name: "oracle unavailable", body: `{"query":"q"}`, err: oracle.Unavailable("embed", true, errors.New("503")), status: http.StatusServiceUnavailable},
		{name: "incompatible index", body: `{"query":"q"}`, err: vector.ErrIncompatibleIndex, status: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			s := New(Config{}, answerFunc(func(context.Context, string) (*pipeline.Answer, error) {
				called = true
				return nil, tc.err
			}), nil)
			rec := do(t, s, http.MethodPost, "/query", tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.err != nil, called)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestRequestIDPropagated(t *testing.T) {
	s := New(Config{}, answerFunc(nil), nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(requestIDHeader))
}

func TestRun_Shutdown(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"}, answerFunc(nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx))
}

func TestMetrics(t *testing.T) {
	s := New(Config{}, answerFunc(func(context.Context, string) (*pipeline.Answer, error) {
		return &pipeline.Answer{NoMatch: true}, nil
	}), nil)
	do(t, s, http.MethodPost, "/query", `{"query":"q"}`)
	do(t, s, http.MethodGet, "/health", "")

	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `ragvec_queries_total{result="no_match"} 1`)
	assert.Contains(t, body, `ragvec_http_requests_total{method="POST",path="/query",status="200"} 1`)
	assert.Contains(t, body, `ragvec_http_requests_total{method="GET",path="/health",status="200"} 1`)
}
