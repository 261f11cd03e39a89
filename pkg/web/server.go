// Package web serves the gamepi page and flash endpoint
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gamepi/pkg/catalog"
	"github.com/teslashibe/go-gamepi/pkg/flash"
	"github.com/teslashibe/go-gamepi/pkg/hub"
	"github.com/teslashibe/go-gamepi/pkg/thumbnail"
)

// shutdownTimeout bounds graceful shutdown of open connections.
const shutdownTimeout = 5 * time.Second

// Options configures a Server.
type Options struct {
	// Addr is the listen address, e.g. "0.0.0.0:5000".
	Addr string

	// Title and Heading override the page texts.
	Title   string
	Heading string

	// ThumbURLPrefix is where thumbnails are served ("/static/thumbnails").
	ThumbURLPrefix string

	// LogRequests enables per-request access logging.
	LogRequests bool

	Catalog    *catalog.Builder
	Invoker    *flash.Invoker
	Thumbnails *thumbnail.Store
	Logger     *slog.Logger
}

// Server is the gamepi HTTP server
type Server struct {
	app  *fiber.App
	opts Options

	catalog    *catalog.Builder
	invoker    *flash.Invoker
	thumbnails *thumbnail.Store
	statusHub  *hub.Hub
	logger     *slog.Logger
}

// NewServer creates a server for the given components.
func NewServer(opts Options) (*Server, error) {
	if opts.Catalog == nil {
		return nil, errors.New("web: catalog required")
	}
	if opts.Invoker == nil {
		return nil, errors.New("web: invoker required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ThumbURLPrefix == "" {
		opts.ThumbURLPrefix = "/static/thumbnails"
	}
	opts.ThumbURLPrefix = "/" + strings.Trim(opts.ThumbURLPrefix, "/")

	s := &Server{
		opts:       opts,
		catalog:    opts.Catalog,
		invoker:    opts.Invoker,
		thumbnails: opts.Thumbnails,
		statusHub:  hub.New("status", opts.Logger),
		logger:     opts.Logger,
	}

	s.invoker.OnStatus(func(status flash.Status) {
		if err := s.statusHub.Publish(hub.EventStatus, status); err != nil {
			s.logger.Warn("publish status", "error", err)
		}
	})

	app := fiber.New(fiber.Config{
		AppName:               "gamepi",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	if opts.LogRequests {
		app.Use(logger.New())
	}

	// Page and flash endpoint
	app.Get("/", s.handleIndex)
	app.Post("/flash", s.handleFlash)

	// Thumbnails
	if s.thumbnails != nil {
		app.Get(opts.ThumbURLPrefix+"/:name", s.handleThumbnail)
	}

	// API routes
	api := app.Group("/api")
	api.Get("/games", s.handleListGames)
	api.Get("/status", s.handleStatus)
	app.Get("/healthz", s.handleHealth)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s, nil
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the status hub.
func (s *Server) Hub() *hub.Hub {
	return s.statusHub
}

// NotifyCatalogChanged tells connected pages to reload the game list.
func (s *Server) NotifyCatalogChanged() {
	if err := s.statusHub.Publish(hub.EventCatalog, nil); err != nil {
		s.logger.Warn("publish catalog change", "error", err)
	}
}

// Start listens on the configured address until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the status hub and serves HTTP on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.statusHub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web server listening", "addr", ln.Addr().String())
		errCh <- s.app.Listener(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}
