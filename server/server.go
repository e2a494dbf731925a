// Package server exposes AnswerQuery over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/viant/sqlite-rag/internal/logging"
	"github.com/viant/sqlite-rag/pipeline"
	"github.com/viant/sqlite-rag/vector"
)

const (
	serviceName     = "ragvec"
	requestIDHeader = "X-Request-ID"
)

// Answerer answers a question from the indexed documents.
type Answerer interface {
	AnswerQuery(ctx context.Context, question string) (*pipeline.Answer, error)
}

// QueryRequest is the POST /query body.
type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResponse is the POST /query reply.
type QueryResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
	NoMatch bool     `json:"no_match"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// Config holds the listener settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server serves the query API.
type Server struct {
	cfg      Config
	answerer Answerer
	logger   *slog.Logger
	metrics  *metrics
	router   *gin.Engine
}

// New returns a Server answering with a.
func New(cfg Config, a Answerer, logger *slog.Logger) *Server {
	s := &Server{cfg: cfg, answerer: a, logger: logging.OrDiscard(logger), metrics: newMetrics()}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(s.requestID(), s.accessLog(), s.metrics.middleware())
	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(s.metrics.handler()))
	router.POST("/query", s.query)
	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.fail(c, http.StatusBadRequest, "query is required")
		return
	}
	span := trace.SpanFromContext(c.Request.Context())
	span.SetAttributes(attribute.Int("query.length", len(req.Query)))

	answer, err := s.answerer.AnswerQuery(c.Request.Context(), req.Query)
	if err != nil {
		status := statusOf(err)
		s.logger.Error("query failed", "error", err, "status", status, "request_id", c.GetString("request_id"))
		s.fail(c, status, err.Error())
		return
	}
	span.SetAttributes(attribute.Bool("query.no_match", answer.NoMatch))
	s.metrics.query(answer.NoMatch)
	sources := answer.Sources
	if sources == nil {
		sources = []string{}
	}
	c.JSON(http.StatusOK, QueryResponse{Answer: answer.Text, Sources: sources, NoMatch: answer.NoMatch})
}

func (s *Server) fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: msg, RequestID: c.GetString("request_id")})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, vector.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, vector.ErrOracleUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		trace.SpanFromContext(c.Request.Context()).SetAttributes(attribute.String("request.id", id))
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
			"request_id", c.GetString("request_id"))
	}
}
