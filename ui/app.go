package ui

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"speccoh/app"
	"speccoh/domain/coherence"
	"speccoh/domain/spectrum"
	"speccoh/internal/cindex"
	"speccoh/internal/config"
	"speccoh/internal/testkit"
)

//go:embed templates/* static/*
var embeddedFiles embed.FS

// App is the headless console: a chi server that analyzes spectra without a
// database. Demo data comes from the synthetic generator, so it runs with
// zero external dependencies.
type App struct {
	router    *chi.Mux
	analysis  *app.AnalysisService
	templates *template.Template
	port      string
}

// Config holds console application configuration
type Config struct {
	Port string
}

// NewApp creates a new console application
func NewApp(config Config) (*App, error) {
	templates, err := template.New("").Funcs(templateFuncs()).ParseFS(embeddedFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	port := config.Port
	if port == "" {
		port = "8080"
	}

	a := &App{
		router:    chi.NewRouter(),
		analysis:  app.NewAnalysisService(cindex.NewEngine(), nil, nil),
		templates: templates,
		port:      port,
	}

	a.setupMiddleware()
	a.setupRoutes()

	return a, nil
}

// setupMiddleware configures HTTP middleware
func (a *App) setupMiddleware() {
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))

	staticFS := http.FileServer(http.FS(embeddedFiles))
	a.router.Handle("/static/*", staticFS)
}

// setupRoutes configures the application routes
func (a *App) setupRoutes() {
	a.router.Get("/", a.handleIndex)
	a.router.Get("/health", a.handleHealth)

	a.router.Post("/api/analyze", a.handleAnalyze)
	a.router.Post("/api/threshold", a.handleThreshold)
	a.router.Get("/api/demo", a.handleDemo)
}

// Start starts the HTTP server
func (a *App) Start() error {
	addr := ":" + a.port
	log.Printf("Starting coherence console on %s", addr)
	return http.ListenAndServe(addr, a.router)
}

func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	a.renderPage(w, "index.html", map[string]interface{}{
		"Runs":       nil,
		"Persistent": false,
		"Defaults":   config.AnalysisConfig{Window: 200, Step: 100, Threshold: 0.5, Sigma: 2.0},
	})
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (a *App) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeAPIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "Invalid request body"})
		return
	}

	spec := spectrum.New(req.Flux)
	spec.Target = req.Target
	spec.Instrument = req.Instrument

	report, err := a.analysis.Analyze(r.Context(), app.AnalyzeRequest{
		Spectrum:      spec,
		Params:        coherence.Params{Window: req.Window, Step: req.Step},
		Threshold:     req.Threshold,
		AutoThreshold: req.AutoThreshold,
	})
	if err != nil {
		log.Printf("[Console] Analysis failed: %v", err)
		writeJSON(w, statusForError(err), map[string]interface{}{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// thresholdRequest carries a bare c-index series for threshold derivation
// without a full analysis round-trip.
type thresholdRequest struct {
	CIndex []float64 `json:"c_index"`
	Sigma  float64   `json:"sigma"`
}

func (a *App) handleThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "Invalid request body"})
		return
	}
	if req.Sigma <= 0 {
		req.Sigma = 2.0
	}

	series := make(coherence.Series, len(req.CIndex))
	for i, v := range req.CIndex {
		series[i] = coherence.WindowStat{Position: i, CIndex: v}
	}

	summary, err := cindex.Summarize(series)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sigma_threshold":    cindex.SigmaThreshold(summary, req.Sigma),
		"quantile_threshold": cindex.NormalQuantileThreshold(summary, 0.05),
		"mean":               summary.Mean,
		"std":                summary.Std,
		"n":                  summary.N,
	})
}

// handleDemo generates a synthetic spectrum and analyzes it in one shot.
// Useful for exercising the charts without real data.
func (a *App) handleDemo(w http.ResponseWriter, r *http.Request) {
	cfg := testkit.DefaultSpectrumConfig()
	if seedStr := r.URL.Query().Get("seed"); seedStr != "" {
		if seed, err := strconv.ParseInt(seedStr, 10, 64); err == nil {
			cfg.Seed = seed
		}
	}
	if nStr := r.URL.Query().Get("n"); nStr != "" {
		if n, err := strconv.Atoi(nStr); err == nil && n >= 2 && n <= 1_000_000 {
			cfg.Length = n
		}
	}

	spec := testkit.NewSpectrumGenerator(cfg).Generate()

	// Shrink the window for short demo spectra so every accepted n analyzes
	params := coherence.Params{Window: 200, Step: 100}
	if params.Window > cfg.Length/2 {
		params.Window = cfg.Length / 2
		if params.Window < 2 {
			params.Window = 2
		}
		params.Step = params.Window / 2
		if params.Step < 1 {
			params.Step = 1
		}
	}

	report, err := a.analysis.Analyze(r.Context(), app.AnalyzeRequest{
		Spectrum:      spec,
		Params:        params,
		AutoThreshold: true,
	})
	if err != nil {
		log.Printf("[Console] Demo analysis failed: %v", err)
		writeJSON(w, statusForError(err), map[string]interface{}{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (a *App) renderPage(w http.ResponseWriter, templateName string, data interface{}) {
	w.Header().Set("Content-Type", "text/html")
	if err := a.templates.ExecuteTemplate(w, templateName, data); err != nil {
		log.Printf("Template error: %v", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}
