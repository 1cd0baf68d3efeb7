package dashboard

import (
	"context"
	"embed"
	"html/template"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"

	"gamemarket/internal/config"
)

//go:embed templates
var templateFS embed.FS

type renderer struct {
	templates *template.Template
}

func (r *renderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

// Server is the dashboard HTTP surface: HTML pages, JSON APIs and metrics.
type Server struct {
	echo   *echo.Echo
	addr   string
	logger *slog.Logger
}

func NewServer(cfg config.DashboardConfig, api *API, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace: "gamemarket",
	}))

	e.Renderer = &renderer{
		templates: template.Must(template.ParseFS(templateFS, "templates/*.html")),
	}

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	for _, page := range []struct{ path, tmpl string }{
		{"/", "index.html"},
		{"/rankings", "rankings.html"},
		{"/analytics", "analytics.html"},
		{"/tables", "tables.html"},
	} {
		tmpl := page.tmpl
		e.GET(page.path, func(c echo.Context) error {
			return c.Render(http.StatusOK, tmpl, nil)
		})
	}

	g := e.Group("/api")
	g.GET("/stats/summary", api.HandleSummary)
	g.GET("/charts/price-distribution", api.HandlePriceDistribution)
	g.GET("/charts/genre-distribution", api.HandleGenreDistribution)
	g.GET("/charts/discount-analysis", api.HandleDiscountAnalysis)
	g.GET("/charts/trending", api.HandleTrending)
	g.GET("/games/latest", api.HandleLatestGames)
	g.GET("/tables", api.HandleTables)
	g.POST("/cache/clear", api.HandleCacheClear)

	return &Server{
		echo:   e,
		addr:   cfg.Addr(),
		logger: logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("dashboard listening", "addr", s.addr)
	return s.echo.Start(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
