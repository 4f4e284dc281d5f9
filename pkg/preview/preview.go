// Package preview serves the live viewer: the artifact itself, an HTML page
// wrapping it, and a websocket that tells the page when to reload.
package preview

import (
	_ "embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/net/websocket"

	"github.com/housecat-inc/qtex/pkg/bus"
	"github.com/housecat-inc/qtex/pkg/port"
)

//go:embed view.html
var viewHTML []byte

type In struct {
	Bus     *bus.Bus
	Logger  *slog.Logger
	Metrics http.Handler
	Output  string
	Port    int
	PortCfg port.Config
}

type Server struct {
	bus    *bus.Bus
	done   chan struct{}
	echo   *echo.Echo
	in     In
	logger *slog.Logger
	once   sync.Once
	port   int
}

func New(in In) *Server {
	if in.Logger == nil {
		in.Logger = slog.Default()
	}
	if in.PortCfg.Listen == nil {
		in.PortCfg = port.DefaultConfig()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		bus:    in.Bus,
		done:   make(chan struct{}),
		echo:   e,
		in:     in,
		logger: in.Logger,
	}
	s.Middleware(e)
	s.Routes(e)
	return s
}

func (s *Server) Middleware(e *echo.Echo) {
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		HandleError: true,
		LogLatency:  true,
		LogMethod:   true,
		LogStatus:   true,
		LogURI:      true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if quiet(c.Path()) {
				level = slog.LevelDebug
			}
			s.logger.Log(c.Request().Context(), level, "request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			)
			return nil
		},
	}))
}

func (s *Server) Routes(e *echo.Echo) {
	e.GET("/", s.handleIndex)
	e.GET("/pdf", s.handlePDF)
	e.GET("/view", s.handleView)
	e.GET("/ws", s.handleWS)
	if s.in.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.in.Metrics))
	}
}

// Start binds the port, reclaiming it from a stale holder if needed, and
// serves in the background. It returns the port actually bound.
func (s *Server) Start() (int, error) {
	ln, p, err := port.Bind(s.in.PortCfg, s.in.Port)
	if err != nil {
		return 0, errors.Wrap(err, "preview")
	}
	return s.Serve(ln, p), nil
}

// Serve serves on an already bound listener.
func (s *Server) Serve(ln net.Listener, p int) int {
	s.port = p
	s.echo.Listener = ln
	go func() {
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("preview server", "error", err)
		}
	}()
	return p
}

var _ http.Handler = (*Server)(nil)

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.echo.Close()
}

func (s *Server) Port() int {
	return s.port
}

func (s *Server) ViewURL() string {
	return fmt.Sprintf("http://localhost:%d/view", s.port)
}

func (s *Server) handleIndex(c echo.Context) error {
	return c.Redirect(http.StatusFound, "/view")
}

func (s *Server) handleView(c echo.Context) error {
	return c.HTMLBlob(http.StatusOK, viewHTML)
}

// handlePDF reads the artifact on every request so a viewer never sees a
// cached copy.
func (s *Server) handlePDF(c echo.Context) error {
	data, err := os.ReadFile(s.in.Output)
	if errors.Is(err, fs.ErrNotExist) {
		return c.String(http.StatusNotFound, "No PDF generated yet")
	}
	if err != nil {
		return errors.Wrapf(err, "read %s", s.in.Output)
	}

	h := c.Response().Header()
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	h.Set("Expires", "0")
	h.Set("Pragma", "no-cache")
	return c.Blob(http.StatusOK, "application/pdf", data)
}

func (s *Server) handleWS(c echo.Context) error {
	websocket.Server{
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   s.stream,
	}.ServeHTTP(c.Response(), c.Request())
	return nil
}

// stream forwards every notification as a text frame until the socket
// fails, the peer goes away or the server closes.
func (s *Server) stream(ws *websocket.Conn) {
	defer ws.Close()
	sub := s.bus.Subscribe()
	defer sub.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		var msg string
		for websocket.Message.Receive(ws, &msg) == nil {
		}
	}()

	s.logger.Debug("viewer connected", "remote", ws.Request().RemoteAddr, "viewers", s.bus.Len())
	for {
		select {
		case <-s.done:
			return
		case <-gone:
			s.logger.Debug("viewer disconnected", "remote", ws.Request().RemoteAddr)
			return
		case n, ok := <-sub.C():
			if !ok {
				return
			}
			if err := websocket.Message.Send(ws, string(n)); err != nil {
				s.logger.Debug("viewer send", "error", err)
				return
			}
		}
	}
}

func quiet(path string) bool {
	return path == "/pdf" || path == "/ws" || strings.HasPrefix(path, "/metrics")
}
