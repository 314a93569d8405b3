// Package api exposes the HTTP surface: query submission, status and
// result polling, and the internally gated trace endpoint.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/veriweb/veriweb/pkg/database"
	"github.com/veriweb/veriweb/pkg/queue"
	"github.com/veriweb/veriweb/pkg/storage"
)

// Server holds handler dependencies.
type Server struct {
	store      storage.Store
	db         *database.Client
	pool       *queue.WorkerPool
	traceToken string
}

// NewServer creates the API server. db and pool may be nil in tests;
// the health endpoint then reports only what it has.
func NewServer(store storage.Store, db *database.Client, pool *queue.WorkerPool, traceToken string) *Server {
	return &Server{
		store:      store,
		db:         db,
		pool:       pool,
		traceToken: traceToken,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.Health)

	api := router.Group("/api")
	{
		api.POST("/query", s.SubmitQuery)
		api.GET("/query/:id/status", s.GetStatus)
		api.GET("/query/:id/result", s.GetResult)
		api.GET("/query/:id/trace", s.requireInternalToken(), s.GetTrace)
	}

	return router
}
