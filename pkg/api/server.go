// Package api implements Vexa's HTTP surface: the per-user control plane,
// the admin plane, and the internal worker callback/upload endpoints, per
// base spec §6.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vexa-ai/vexa/pkg/bus"
	"github.com/vexa-ai/vexa/pkg/config"
	"github.com/vexa-ai/vexa/pkg/database"
	"github.com/vexa-ai/vexa/pkg/lifecycle"
	"github.com/vexa-ai/vexa/pkg/recordings"
	"github.com/vexa-ai/vexa/pkg/registry"
	"github.com/vexa-ai/vexa/pkg/version"
)

// Server is the HTTP API server, wrapping a gin.Engine the way the teacher
// wraps an *echo.Echo.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	cfg      *config.Config
	dbClient *database.Client
	registry *registry.Registry
	manager  *lifecycle.Manager
	store    recordings.ObjectStore
	bus      *bus.Bus
}

// NewServer constructs a Server and registers every route. All dependencies
// are required: unlike the teacher's MCP/chat pieces, nothing in Vexa's
// control plane is optional.
func NewServer(cfg *config.Config, dbClient *database.Client, reg *registry.Registry, manager *lifecycle.Manager, store recordings.ObjectStore, commandBus *bus.Bus) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), securityHeaders())

	s := &Server{
		engine:   engine,
		cfg:      cfg,
		dbClient: dbClient,
		registry: reg,
		manager:  manager,
		store:    store,
		bus:      commandBus,
	}
	s.setupRoutes()
	return s
}

// ValidateWiring checks that every dependency NewServer requires was
// actually passed, the gin analog of the teacher's ValidateWiring — call
// this once at startup, before Start.
func (s *Server) ValidateWiring() error {
	var errs []error
	if s.cfg == nil {
		errs = append(errs, fmt.Errorf("config not set"))
	}
	if s.dbClient == nil {
		errs = append(errs, fmt.Errorf("database client not set"))
	}
	if s.registry == nil {
		errs = append(errs, fmt.Errorf("registry not set"))
	}
	if s.manager == nil {
		errs = append(errs, fmt.Errorf("lifecycle manager not set"))
	}
	if s.store == nil {
		errs = append(errs, fmt.Errorf("recording object store not set"))
	}
	if s.bus == nil {
		errs = append(errs, fmt.Errorf("command bus not set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("server wiring incomplete: %w", errors.Join(errs...))
	}
	return nil
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.healthHandler)

	control := s.engine.Group("/")
	control.Use(apiKeyAuth(s.registry))
	{
		control.POST("/bots", s.dispatchBotHandler)
		control.DELETE("/bots/:platform/:native_id", s.stopBotHandler)
		control.PUT("/bots/:platform/:native_id/config", s.reconfigureBotHandler)
		control.GET("/bots/status", s.botStatusHandler)

		control.GET("/meetings", s.listMeetingsHandler)
		control.PATCH("/meetings/:platform/:native_id", s.patchMeetingHandler)
		control.DELETE("/meetings/:platform/:native_id", s.anonymizeMeetingHandler)

		control.GET("/transcripts/:platform/:native_id", s.getTranscriptHandler)
		control.POST("/transcripts/:platform/:native_id/share", s.shareTranscriptHandler)

		control.GET("/recordings/:id", s.getRecordingHandler)
		control.DELETE("/recordings/:id", s.deleteRecordingHandler)
		control.GET("/recordings/:id/media/:file_id/raw", s.recordingMediaHandler)
	}

	// Unauthenticated: a valid share token alone grants read access, per
	// SPEC_FULL.md's resolved design for transcript sharing.
	s.engine.GET("/transcripts/shared/:token", s.getSharedTranscriptHandler)

	admin := s.engine.Group("/admin")
	admin.Use(adminAuth(s.cfg.AdminAPIToken))
	{
		admin.POST("/users", s.createUserHandler)
		admin.GET("/users", s.listUsersHandler)
		admin.PATCH("/users/:id/concurrency", s.updateUserConcurrencyHandler)
		admin.PUT("/users/:id/webhook", s.updateUserWebhookHandler)
	}

	internal := s.engine.Group("/internal")
	{
		internal.POST("/callbacks/:connection_id", s.workerCallbackHandler)
		internal.POST("/recordings/:meeting_id/upload", s.recordingUploadHandler)
	}
}

// Start starts the HTTP server on addr (non-blocking for callers that run
// it in its own goroutine, like the teacher's Start).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on a pre-created listener, for tests that bind
// an OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.engine}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.dbClient.DB())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Version: version.Full(), Database: dbHealth})
		return
	}

	busStatus := "healthy"
	if err := s.bus.Ping(ctx); err != nil {
		busStatus = "unhealthy"
	}

	status := "healthy"
	if busStatus != "healthy" {
		status = "degraded"
	}
	c.JSON(http.StatusOK, HealthResponse{Status: status, Version: version.Full(), Database: dbHealth, Bus: busStatus})
}
