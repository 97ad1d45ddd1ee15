// Package server exposes the engine over HTTP: analysis, ledger access,
// trail verification, gate attempts, and the coherence recursion. Every
// handler is a stateless wrapper around the core components; errors come
// back as a stable {error, kind} envelope, never a stack trace.
package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/regenloop/coherence-engine/internal/analyzer"
	"github.com/regenloop/coherence-engine/internal/driver"
	"github.com/regenloop/coherence-engine/internal/gates"
	"github.com/regenloop/coherence-engine/internal/ledger"
)

// #region server

// Server wires the four components behind a gin router.
type Server struct {
	trail      *ledger.Ledger
	machine    *gates.Machine
	thresholds analyzer.Thresholds
	recursion  driver.Config
	logger     *zap.Logger

	engine *gin.Engine
}

// Options configures a Server.
type Options struct {
	Thresholds analyzer.Thresholds
	Recursion  driver.Config
	// AuthToken, when non-empty, guards everything except health and
	// metrics.
	AuthToken string
}

// New builds the router. The machine may be nil when the embedder drives
// gates itself; gate routes then return 404.
func New(trail *ledger.Ledger, machine *gates.Machine, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), metricsMiddleware())

	s := &Server{
		trail:      trail,
		machine:    machine,
		thresholds: opts.Thresholds,
		recursion:  opts.Recursion,
		logger:     logger,
		engine:     engine,
	}

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/")
	if opts.AuthToken != "" {
		api.Use(authMiddleware(opts.AuthToken))
	}
	api.POST("/analyze", s.handleAnalyze)
	api.POST("/ledger/append", s.handleAppend)
	api.GET("/ledger/query", s.handleQuery)
	api.GET("/ledger/verify", s.handleVerify)
	api.GET("/ledger/walk/:id", s.handleWalk)
	api.GET("/ledger/export", s.handleExport)
	api.GET("/coherence", s.handleCoherence)
	api.POST("/coherence/recurse", s.handleRecurse)
	if machine != nil {
		api.GET("/gates/phase", s.handlePhase)
		api.POST("/gates/advance", s.handleAdvance)
	}

	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	s.logger.Info("http surface listening", zap.String("addr", addr))
	return s.engine.Run(addr)
}

// #endregion server

// #region errors

// writeError maps engine errors onto the stable envelope.
func writeError(c *gin.Context, err error) {
	var verr *ledger.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "kind": "validation"})
		return
	}
	var serr *ledger.StorageError
	if errors.As(err, &serr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": serr.Error(), "kind": "storage"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "kind": "internal"})
}

// #endregion errors

// #region analyze

type analyzeRequest struct {
	Text       string               `json:"text"`
	Thresholds *analyzer.Thresholds `json:"thresholds,omitempty"`
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body", "kind": "validation"})
		return
	}

	thresholds := s.thresholds
	if req.Thresholds != nil {
		thresholds = *req.Thresholds
	}
	c.JSON(http.StatusOK, analyzer.Analyze(req.Text, thresholds))
}

// #endregion analyze

// #region ledger-handlers

func (s *Server) handleAppend(c *gin.Context) {
	var entry ledger.DecisionEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body", "kind": "validation"})
		return
	}
	// Hash fields are engine-owned.
	entry.Hash = ""
	entry.PreviousHash = ""

	appended, err := s.trail.Append(c.Request.Context(), entry)
	if err != nil {
		writeError(c, err)
		return
	}
	appendsTotal.Inc()
	c.JSON(http.StatusCreated, appended)
}

func (s *Server) handleQuery(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "validation"})
		return
	}
	entries, err := s.trail.Query(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	if entries == nil {
		entries = []ledger.DecisionEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (s *Server) handleVerify(c *gin.Context) {
	report, err := s.trail.VerifyTrail(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if !report.Valid {
		verifyFailuresTotal.Inc()
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleWalk(c *gin.Context) {
	chain, err := s.trail.WalkChain(c.Request.Context(), c.Param("id"))
	if err != nil {
		var verr *ledger.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusNotFound, gin.H{"error": verr.Error(), "kind": "not_found"})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, chain)
}

func (s *Server) handleExport(c *gin.Context) {
	format := ledger.ExportFormat(c.DefaultQuery("format", string(ledger.FormatJSON)))
	filter, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "validation"})
		return
	}
	entries, err := s.trail.Query(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	switch format {
	case ledger.FormatCSV:
		c.Header("Content-Type", "text/csv")
	case ledger.FormatTimeline:
		c.Header("Content-Type", "text/plain; charset=utf-8")
	default:
		c.Header("Content-Type", "application/json")
	}
	if err := ledger.Export(c.Writer, entries, format); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "validation"})
	}
}

// #endregion ledger-handlers

// #region coherence-handlers

func (s *Server) handleCoherence(c *gin.Context) {
	window := s.recursion.Window
	if v := c.Query("window"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "window must be a positive integer", "kind": "validation"})
			return
		}
		window = parsed
	}
	score, considered, err := s.trail.CoherenceWindow(c.Request.Context(), window)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coherence": score, "entriesConsidered": considered, "target": s.recursion.Target})
}

type recurseRequest struct {
	Target        float64 `json:"target,omitempty"`
	MaxIterations int     `json:"maxIterations,omitempty"`
}

func (s *Server) handleRecurse(c *gin.Context) {
	var req recurseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body", "kind": "validation"})
			return
		}
	}

	cfg := s.recursion
	if req.Target > 0 {
		cfg.Target = req.Target
	}
	if req.MaxIterations > 0 {
		cfg.MaxIterations = req.MaxIterations
	}

	report, err := driver.New(s.trail, cfg, s.logger).Run(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// #endregion coherence-handlers

// #region gate-handlers

func (s *Server) handlePhase(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"phase": s.machine.Current()})
}

func (s *Server) handleAdvance(c *gin.Context) {
	tr, err := s.machine.Advance(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	result := "pass"
	if !tr.Passed {
		result = "fail"
	}
	gateAttemptsTotal.WithLabelValues(result).Inc()
	c.JSON(http.StatusOK, tr)
}

// #endregion gate-handlers

// #region health

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// #endregion health

// #region query-parsing

// filterFromQuery parses the shared ledger filter query parameters.
func filterFromQuery(c *gin.Context) (ledger.Filter, error) {
	var f ledger.Filter
	f.Actor = c.Query("actor")
	f.Contains = c.Query("contains")
	f.GateState = c.Query("gate_state")
	f.ParentEntry = c.Query("parent")

	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("since must be RFC3339")
		}
		f.Since = &t
	}
	if v := c.Query("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("until must be RFC3339")
		}
		f.Until = &t
	}
	if v := c.Query("min_coherence"); v != "" {
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, errors.New("min_coherence must be a float")
		}
		f.MinCoherence = &x
	}
	if v := c.Query("max_coherence"); v != "" {
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, errors.New("max_coherence must be a float")
		}
		f.MaxCoherence = &x
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, errors.New("limit must be an integer")
		}
		f.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, errors.New("offset must be an integer")
		}
		f.Offset = n
	}
	return f, nil
}

// #endregion query-parsing
