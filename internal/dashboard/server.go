package dashboard

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fundingflow/config"
	"fundingflow/logger"
)

//go:embed templates/*.tmpl
var embeddedFS embed.FS

// Server hosts the Gin-powered progress dashboard. It exposes the crawl
// counters, recent logs and host resource usage while a run is in flight.
type Server struct {
	cfg               config.DashboardConfig
	log               *logger.Log
	logs              *logRing
	sampler           *resourceSampler
	httpServer        *http.Server
	refreshIntervalMs int
	startedAt         time.Time
}

// NewServer constructs a dashboard server when the dashboard is enabled.
// When it is disabled the returned server is nil and every method on it is a
// no-op.
func NewServer(cfg config.DashboardConfig, log *logger.Log) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cfg.Address = normalizeAddress(cfg.Address)
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Second
	}

	logs := newLogRing(cfg.LogHistory)
	log.AddHook(logs)

	sampler := newResourceSampler(cfg.SampleHistory, cfg.RefreshInterval, "/", log)

	return &Server{
		cfg:               cfg,
		log:               log,
		logs:              logs,
		sampler:           sampler,
		refreshIntervalMs: int(cfg.RefreshInterval / time.Millisecond),
		startedAt:         time.Now(),
	}, nil
}

// Run starts the dashboard HTTP server and blocks until the context is
// cancelled or the server exits with an error.
func (s *Server) Run(ctx context.Context, appName string) error {
	if s == nil {
		return nil
	}

	defer s.cleanup()

	router, err := s.buildRouter(appName)
	if err != nil {
		return err
	}

	s.sampler.start(ctx)

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) cleanup() {
	if s.logs != nil {
		s.logs.close()
	}
	if s.sampler != nil {
		s.sampler.stop()
	}
}

// Address reports the network address the dashboard listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter(appName string) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	tmpl, err := template.New("dashboard").ParseFS(embeddedFS, "templates/index.tmpl")
	if err != nil {
		return nil, err
	}
	router.SetHTMLTemplate(tmpl)

	router.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.tmpl", gin.H{
			"AppName":           appName,
			"RefreshIntervalMs": s.refreshIntervalMs,
		})
	})

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/api/stats", func(c *gin.Context) {
		payload := gin.H{
			"app":            appName,
			"uptime_seconds": int64(time.Since(s.startedAt) / time.Second),
			"crawl":          logger.Snapshot(),
		}
		if sample, ok := s.sampler.latest(); ok {
			payload["resources"] = sample
		}
		c.JSON(http.StatusOK, payload)
	})

	router.GET("/api/logs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"logs": s.logs.snapshot()})
	})

	router.GET("/api/resources", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"resources": s.sampler.snapshot()})
	})

	return router, nil
}

// normalizeAddress fills in the host and port a listener needs: a bare port
// (":9090") binds every interface, a bare host gets the default port.
func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "0.0.0.0:9090"
	}

	if strings.HasPrefix(addr, ":") {
		return "0.0.0.0" + addr
	}

	if host, port, err := net.SplitHostPort(addr); err == nil {
		if host == "" {
			host = "0.0.0.0"
		}
		return net.JoinHostPort(host, port)
	}

	return net.JoinHostPort(addr, "9090")
}
