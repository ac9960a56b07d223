// Package api handles HTTP and WebSocket API endpoints
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/thereceipt/label-dispatch/internal/command"
	"github.com/thereceipt/label-dispatch/internal/notify"
	"github.com/thereceipt/label-dispatch/internal/printer"
	"github.com/thereceipt/label-dispatch/internal/registry"
)

// EventHistory returns recently published events
type EventHistory interface {
	History(ctx context.Context, n int64) ([]notify.Message, error)
}

// Server is the API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	dispatcher  *printer.Dispatcher
	registry    *registry.Registry
	executor    *command.Executor
	hub         *Hub
	metrics     http.Handler
	history     EventHistory
	serialPorts func() ([]printer.SerialPort, error)
	log         logrus.FieldLogger
	upgrader    websocket.Upgrader
}

// Option configures a Server
type Option func(*Server)

// WithMetrics serves h on /metrics
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithHistory serves recent events on /events
func WithHistory(h EventHistory) Option {
	return func(s *Server) { s.history = h }
}

// NewServer creates a new API server and subscribes its websocket hub to
// dispatch events
func NewServer(dispatcher *printer.Dispatcher, reg *registry.Registry, log logrus.FieldLogger, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log), corsMiddleware())

	server := &Server{
		router:      router,
		dispatcher:  dispatcher,
		registry:    reg,
		executor:    command.NewExecutor(dispatcher, reg),
		hub:         NewHub(log),
		serialPorts: printer.ListSerialPorts,
		log:         log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
	}
	for _, opt := range opts {
		opt(server)
	}

	dispatcher.Observe(server.BroadcastDispatch)
	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	// Profiles
	s.router.GET("/profiles", s.handleGetProfiles)
	s.router.POST("/profiles", s.handleAddProfile)
	s.router.GET("/profiles/:id", s.handleGetProfile)
	s.router.PUT("/profiles/:id", s.handleUpdateProfile)
	s.router.POST("/profiles/:id/name", s.handleSetProfileName)
	s.router.DELETE("/profiles/:id", s.handleRemoveProfile)

	// Dispatch
	s.router.POST("/dispatch", s.handleDispatch)
	s.router.POST("/raw", s.handleRaw)
	s.router.GET("/memory/:id", s.handleMemory)

	// Discovery
	s.router.GET("/devices/usb", s.handleUsbDevices)
	s.router.GET("/ports/serial", s.handleSerialPorts)
	s.router.GET("/queues", s.handleQueues)

	// Command endpoint
	s.router.POST("/command", s.handleCommand)

	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics))
	}
	if s.history != nil {
		s.router.GET("/events", s.handleEvents)
	}

	// WebSocket
	s.router.GET("/ws", s.handleWebSocket)

	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}

// Handler exposes the router, e.g. for httptest
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run serves on addr until Shutdown is called
func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.WithField("addr", addr).Info("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes websocket clients and waits for
// in-flight requests until ctx is done
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if len(c.Errors) > 0 {
			entry.Warn(c.Errors.String())
			return
		}
		entry.Debug("request")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func queryInt(c *gin.Context, name string, def int64) int64 {
	v, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil {
		return def
	}
	return v
}
