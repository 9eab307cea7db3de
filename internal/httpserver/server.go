// Package httpserver binds the Control API to HTTP, using gin for routing
// and a uniform JSON success/error envelope.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Mapleshade20/online-judge/internal/api"
)

// Server wraps the gin engine and http.Server lifecycle.
type Server struct {
	api    *api.API
	engine *gin.Engine
	http   *http.Server
}

// New builds a Server bound to addr, routing every SPEC_FULL §6 endpoint to
// the given Control API.
func New(addr string, a *api.API) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(recoveryMiddleware(), traceMiddleware(), accessLogMiddleware())

	s := &Server{api: a, engine: engine}
	s.registerRoutes()

	s.http = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealthz)

	s.engine.POST("/jobs", s.handleSubmit)
	s.engine.GET("/jobs", s.handleQueryJobs)
	s.engine.GET("/jobs/:id", s.handleGetJob)
	s.engine.PUT("/jobs/:id", s.handleRejudge)
	s.engine.DELETE("/jobs/:id", s.handleCancel)

	s.engine.POST("/users", s.handleCreateOrUpdateUser)
	s.engine.GET("/users", s.handleListUsers)

	s.engine.POST("/contests", s.handleCreateOrUpdateContest)
	s.engine.GET("/contests", s.handleListContests)
	s.engine.GET("/contests/:id", s.handleGetContest)
	s.engine.GET("/contests/:id/ranklist", s.handleRankList)
}

// ListenAndServe starts the HTTP server; blocks until Shutdown is called or
// an unrecoverable error occurs.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Handler exposes the underlying http.Handler, letting tests drive routes
// through httptest without binding a real listener.
func (s *Server) Handler() http.Handler { return s.engine }

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
