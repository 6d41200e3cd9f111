package ui

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"speccoh/app"
	"speccoh/domain/coherence"
	"speccoh/domain/core"
	"speccoh/domain/spectrum"
	"speccoh/internal/cindex"
	"speccoh/internal/config"
	apperrors "speccoh/internal/errors"
	"speccoh/ports"

	"github.com/gin-gonic/gin"
)

// Server is the gin-backed dashboard: HTML pages for browsing runs plus the
// JSON API the page charts pull from.
type Server struct {
	router        *gin.Engine
	analysis      *app.AnalysisService
	runs          ports.RunRepository
	defaults      config.AnalysisConfig
	templates     *template.Template
	embeddedFiles embed.FS
}

// NewServer creates a new dashboard server instance
func NewServer(embeddedFiles embed.FS) *Server {
	return &Server{
		router:        gin.Default(),
		embeddedFiles: embeddedFiles,
	}
}

// Initialize sets up the server with dependencies and parses the embedded
// templates. The run repository may be nil; the dashboard then works in
// analyze-only mode.
func (s *Server) Initialize(analysis *app.AnalysisService, runs ports.RunRepository, defaults config.AnalysisConfig) error {
	s.analysis = analysis
	s.runs = runs
	s.defaults = defaults

	templatesFS, err := fs.Sub(s.embeddedFiles, "ui/templates")
	if err != nil {
		return fmt.Errorf("failed to create templates filesystem: %w", err)
	}

	s.templates, err = template.New("").Funcs(templateFuncs()).ParseFS(templatesFS, "*.html")
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"mul":   func(a, b float64) float64 { return a * b },
		"add":   func(a, b int) int { return a + b },
		"lower": strings.ToLower,
		"short": func(s string, n int) string {
			if len(s) <= n {
				return s
			}
			return s[:n]
		},
	}
}

// setupMiddleware serves static assets from the embedded filesystem
func (s *Server) setupMiddleware() {
	staticFS, err := fs.Sub(s.embeddedFiles, "ui/static")
	if err != nil {
		log.Printf("[Server] Error creating static filesystem: %v", err)
		return
	}
	s.router.StaticFS("/static", http.FS(staticFS))
}

// setupRoutes configures the application routes
func (s *Server) setupRoutes() {
	// Pages
	s.router.GET("/", s.handleIndex)
	s.router.GET("/runs/:id", s.handleRunPage)

	// JSON API for the page charts and external callers
	s.router.POST("/api/analyze", s.handleAnalyze)
	s.router.GET("/api/runs", s.handleListRuns)
	s.router.GET("/api/runs/:id", s.handleGetRun)
	s.router.GET("/api/runs/:id/series", s.handleRunSeries)
	s.router.GET("/api/runs/:id/histogram", s.handleRunHistogram)
	s.router.DELETE("/api/runs/:id", s.handleDeleteRun)
	s.router.GET("/api/health", s.handleHealth)
}

// Start starts the web server
func (s *Server) Start(addr string) error {
	log.Printf("Starting coherence dashboard on http://%s", addr)
	return s.router.Run(addr)
}

func (s *Server) handleIndex(c *gin.Context) {
	runs, err := s.analysis.ListRuns(c.Request.Context(), 50)
	if err != nil {
		log.Printf("[Server] Failed to list runs for index: %v", err)
		runs = nil
	}

	s.renderTemplate(c, "index.html", map[string]interface{}{
		"Runs":       runs,
		"Defaults":   s.defaults,
		"Persistent": s.runs != nil,
	})
}

func (s *Server) handleRunPage(c *gin.Context) {
	id := core.RunID(c.Param("id"))

	report, err := s.analysis.GetRun(c.Request.Context(), id)
	if err != nil {
		log.Printf("[Server] Run %s not found: %v", id, err)
		c.String(http.StatusNotFound, "run not found")
		return
	}

	s.renderTemplate(c, "run_detail.html", map[string]interface{}{
		"Report": report,
	})
}

// analyzeAPIRequest is the JSON body for POST /api/analyze. Window and step
// fall back to the configured defaults when omitted.
type analyzeAPIRequest struct {
	Flux          []float64 `json:"flux"`
	Target        string    `json:"target"`
	Instrument    string    `json:"instrument"`
	Window        int       `json:"window"`
	Step          int       `json:"step"`
	Threshold     float64   `json:"threshold"`
	AutoThreshold bool      `json:"auto_threshold"`
	Save          bool      `json:"save"`
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeAPIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if req.Window == 0 {
		req.Window = s.defaults.Window
	}
	if req.Step == 0 {
		req.Step = s.defaults.Step
	}
	if req.Threshold == 0 && !req.AutoThreshold {
		req.Threshold = s.defaults.Threshold
	}

	spec := spectrum.New(req.Flux)
	spec.Target = req.Target
	spec.Instrument = req.Instrument

	report, err := s.analysis.Analyze(c.Request.Context(), app.AnalyzeRequest{
		Spectrum:      spec,
		Params:        coherence.Params{Window: req.Window, Step: req.Step},
		Threshold:     req.Threshold,
		AutoThreshold: req.AutoThreshold,
		Save:          req.Save,
	})
	if err != nil {
		log.Printf("[API] Analysis failed: %v", err)
		c.JSON(statusForError(err), gin.H{"error": "Analysis failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (s *Server) handleListRuns(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "20")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}

	runs, err := s.analysis.ListRuns(c.Request.Context(), limit)
	if err != nil {
		log.Printf("[API] Failed to list runs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

func (s *Server) handleGetRun(c *gin.Context) {
	id := core.RunID(c.Param("id"))

	report, err := s.analysis.GetRun(c.Request.Context(), id)
	if err != nil {
		log.Printf("[API] Failed to get run %s: %v", id, err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}

	c.JSON(http.StatusOK, report)
}

// handleRunSeries returns the per-window series as parallel arrays, the
// shape the D3 charts consume directly.
func (s *Server) handleRunSeries(c *gin.Context) {
	id := core.RunID(c.Param("id"))

	report, err := s.analysis.GetRun(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}

	n := len(report.Series)
	positions := make([]int, n)
	cIndex := make([]float64, n)
	smooth := make([]float64, n)
	stable := make([]float64, n)
	consistent := make([]float64, n)
	for i, w := range report.Series {
		positions[i] = w.Position
		cIndex[i] = w.CIndex
		smooth[i] = w.Smoothness
		stable[i] = w.Stability
		consistent[i] = w.Consistency
	}

	c.JSON(http.StatusOK, gin.H{
		"positions":   positions,
		"c_index":     cIndex,
		"smoothness":  smooth,
		"stability":   stable,
		"consistency": consistent,
		"threshold":   report.Threshold,
		"window":      report.Params.Window,
		"regions":     report.Regions,
	})
}

// handleRunHistogram bins the run's c-index values for the distribution
// chart. Dividers are bin edges, so len(dividers) == len(counts)+1.
func (s *Server) handleRunHistogram(c *gin.Context) {
	id := core.RunID(c.Param("id"))

	report, err := s.analysis.GetRun(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}

	binsStr := c.DefaultQuery("bins", "20")
	bins, err := strconv.Atoi(binsStr)
	if err != nil || bins < 1 || bins > 200 {
		bins = 20
	}

	dividers, counts := cindex.Histogram(report.Series, bins)
	c.JSON(http.StatusOK, gin.H{
		"dividers": dividers,
		"counts":   counts,
		"n":        len(report.Series),
	})
}

func (s *Server) handleDeleteRun(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No run storage configured"})
		return
	}

	id := core.RunID(c.Param("id"))
	if err := s.runs.DeleteRun(c.Request.Context(), id); err != nil {
		log.Printf("[API] Failed to delete run %s: %v", id, err)
		c.JSON(statusForError(err), gin.H{"error": "Failed to delete run"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"persistent": s.runs != nil,
		"time":       time.Now().UTC().Format(time.RFC3339),
	})
}

func statusForError(err error) int {
	if core.IsNotFoundError(err) {
		return http.StatusNotFound
	}
	switch apperrors.GetCode(err) {
	case apperrors.CodeInvalidInput, apperrors.CodeValidationError:
		return http.StatusBadRequest
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
