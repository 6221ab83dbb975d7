// Package dashboard serves a read-only battery health dashboard over the
// engineered features and batch predictions.
package dashboard

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gonum.org/v1/plot"

	"github.com/sreeram77/battery-pm/internal/api"
	"github.com/sreeram77/battery-pm/internal/features"
	"github.com/sreeram77/battery-pm/internal/plotting"
	"github.com/sreeram77/battery-pm/internal/predictor"
	"github.com/sreeram77/battery-pm/internal/table"
)

// DefaultFeature is preselected in the feature dropdown
const DefaultFeature = features.ColStateOfCharge

var page = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>EV Battery Health Dashboard</title>
<style>
body { font-family: sans-serif; margin: 2em; }
h1 { text-align: center; }
img { max-width: 100%; display: block; margin-bottom: 2em; }
select { width: 50%; }
</style>
</head>
<body>
<h1>EV Battery Health Dashboard</h1>
<img id="soc-over-time" src="/charts/soc.png" alt="State of Charge Over Time">
<img id="rul-distribution" src="/charts/rul.png" alt="Distribution of RUL Predictions">
<label for="feature-dropdown">Select Feature for Analysis:</label>
<select id="feature-dropdown" onchange="document.getElementById('feature-visualization').src='/charts/feature.png?name='+encodeURIComponent(this.value)">
{{- range .Features}}
<option value="{{.}}"{{if eq . $.Selected}} selected{{end}}>{{.}}</option>
{{- end}}
</select>
<img id="feature-visualization" src="/charts/feature.png?name={{.Selected}}" alt="Feature Over Time">
</body>
</html>
`))

// Config holds dashboard server settings
type Config struct {
	Addr       string
	TimeColumn string
}

// Server serves the dashboard
type Server struct {
	router      *gin.Engine
	logger      zerolog.Logger
	httpServer  *http.Server
	timeColumn  string
	features    *table.Table
	predictions *table.Table
}

// NewServer creates a dashboard over already loaded tables
func NewServer(logger zerolog.Logger, cfg Config, engineered, predictions *table.Table) *Server {
	if cfg.TimeColumn == "" {
		cfg.TimeColumn = "timestamp"
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8050"
	}

	srv := &Server{
		logger:      logger,
		timeColumn:  cfg.TimeColumn,
		features:    engineered,
		predictions: predictions,
	}

	if os.Getenv("GIN_MODE") != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv.router = gin.New()
	srv.router.Use(
		gin.Recovery(),
		api.RequestLogger(logger),
	)
	srv.registerRoutes()

	srv.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.router,
	}

	return srv
}

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until Shutdown is called
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("Starting dashboard")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.GET("/", s.index)
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	charts := s.router.Group("/charts")
	{
		charts.GET("/soc.png", s.socChart)
		charts.GET("/rul.png", s.rulChart)
		charts.GET("/feature.png", s.featureChart)
	}
}

// Features lists the selectable columns: every numeric column except the
// time column
func (s *Server) Features() []string {
	var names []string
	for _, name := range s.features.NumericNames() {
		if name != s.timeColumn {
			names = append(names, name)
		}
	}
	return names
}

func (s *Server) index(c *gin.Context) {
	data := struct {
		Features []string
		Selected string
	}{
		Features: s.Features(),
		Selected: DefaultFeature,
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		c.Error(err)
		c.String(http.StatusInternalServerError, "failed to render dashboard")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) socChart(c *gin.Context) {
	soc, err := s.features.Numeric(features.ColStateOfCharge)
	if err != nil {
		c.String(http.StatusNotFound, "no state of charge data")
		return
	}
	p, err := plotting.Line("State of Charge Over Time", "Time", "State of Charge (%)", s.times(), soc)
	s.writeChart(c, p, err)
}

func (s *Server) rulChart(c *gin.Context) {
	rul, err := s.predictions.Numeric(predictor.ColRUL)
	if err != nil {
		c.String(http.StatusNotFound, "no RUL predictions")
		return
	}
	p, err := plotting.Histogram("Distribution of RUL Predictions", "Remaining Useful Life (RUL)", rul, plotting.Bins)
	s.writeChart(c, p, err)
}

func (s *Server) featureChart(c *gin.Context) {
	name := c.DefaultQuery("name", DefaultFeature)
	if name == s.timeColumn || !s.features.Has(name) {
		c.String(http.StatusNotFound, "unknown feature %q", name)
		return
	}

	col, _ := s.features.Column(name)
	if col.Kind != table.Numeric {
		c.String(http.StatusNotFound, "feature %q is not numeric", name)
		return
	}

	p, err := plotting.Line(name+" Over Time", "Time", name, s.times(), col.Nums)
	s.writeChart(c, p, err)
}

func (s *Server) times() []time.Time {
	times, err := s.features.Times(s.timeColumn)
	if err != nil {
		return nil
	}
	return times
}

func (s *Server) writeChart(c *gin.Context, p *plot.Plot, err error) {
	if errors.Is(err, plotting.ErrNoData) {
		c.String(http.StatusNotFound, "no data")
		return
	}
	if err != nil {
		c.Error(err)
		c.String(http.StatusInternalServerError, "failed to build chart")
		return
	}

	var buf bytes.Buffer
	if err := plotting.WritePNG(p, &buf); err != nil {
		c.Error(err)
		c.String(http.StatusInternalServerError, "failed to render chart")
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}
