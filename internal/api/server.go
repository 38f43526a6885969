// Package api serves the classifier's current state, recent history and
// configuration over HTTP.
package api

import (
	"bytes"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/motion.report/internal/httputil"
	"github.com/banshee-data/motion.report/internal/motion"
	"github.com/banshee-data/motion.report/internal/report"
	"github.com/banshee-data/motion.report/internal/sensor"
	"github.com/banshee-data/motion.report/internal/serialmux"
	"github.com/banshee-data/motion.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// maxHistory caps /api/evaluations regardless of the limit requested.
const maxHistory = 1000

// StatusProvider reports what the sample source has seen from the device.
type StatusProvider interface {
	Status() sensor.Status
}

type Server struct {
	m        serialmux.SerialMuxInterface
	recorder *report.Recorder
	cfg      motion.Config
	source   StatusProvider
	mode     string
}

// NewServer builds the API over recorder. source may be nil when the sample
// source does not track device status (replay, disabled sensor). mode names
// the acquisition mode for /api/status.
func NewServer(m serialmux.SerialMuxInterface, recorder *report.Recorder, cfg motion.Config, source StatusProvider, mode string) *Server {
	return &Server{
		m:        m,
		recorder: recorder,
		cfg:      cfg,
		source:   source,
		mode:     mode,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/command", s.sendCommandHandler)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/evaluations", s.listEvaluations)
	mux.HandleFunc("/api/chart", s.showChart)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	command := strings.TrimSpace(r.FormValue("command"))
	if command == "" {
		httputil.BadRequest(w, "missing command")
		return
	}
	if err := s.m.SendCommand(command); err != nil {
		httputil.InternalServerError(w, "failed to send command")
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"sent": command})
}

// evaluationView renders non-finite diagnostics as null, which encoding/json
// cannot otherwise represent.
type evaluationView struct {
	Seq               uint64    `json:"seq"`
	State             string    `json:"state"`
	Label             string    `json:"label"`
	Moving            bool      `json:"moving"`
	Samples           int       `json:"samples"`
	Mean              *float64  `json:"mean"`
	Variance          *float64  `json:"variance"`
	ReferenceVariance *float64  `json:"reference_variance"`
	At                time.Time `json:"at"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func viewOf(r report.Record) evaluationView {
	return evaluationView{
		Seq:               r.Seq,
		State:             r.State.String(),
		Label:             r.State.Label(),
		Moving:            r.State.Moving(),
		Samples:           r.Samples,
		Mean:              finite(r.Mean),
		Variance:          finite(r.Variance),
		ReferenceVariance: finite(r.ReferenceVariance),
		At:                r.At,
	}
}

type statusResponse struct {
	Session     string            `json:"session"`
	Mode        string            `json:"mode"`
	Version     string            `json:"version"`
	GitSHA      string            `json:"git_sha"`
	Started     time.Time         `json:"started"`
	State       string            `json:"state"`
	Label       string            `json:"label"`
	Moving      bool              `json:"moving"`
	Evaluations uint64            `json:"evaluations"`
	Counts      map[string]uint64 `json:"counts"`
	Last        *evaluationView   `json:"last,omitempty"`
	Device      *sensor.Status    `json:"device,omitempty"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	resp := statusResponse{
		Session:     s.recorder.Session().String(),
		Mode:        s.mode,
		Version:     version.Version,
		GitSHA:      version.GitSHA,
		Started:     s.recorder.Started(),
		State:       motion.Unknown.String(),
		Label:       motion.Unknown.Label(),
		Evaluations: s.recorder.Total(),
		Counts:      s.recorder.Counts().ByName(),
	}
	if last, ok := s.recorder.Latest(); ok {
		v := viewOf(last)
		resp.Last = &v
		resp.State, resp.Label, resp.Moving = v.State, v.Label, v.Moving
	}
	if s.source != nil {
		st := s.source.Status()
		resp.Device = &st
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) listEvaluations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit, err := httputil.QueryLimit(r, "limit", 100, maxHistory)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	records := s.recorder.History(limit)
	views := make([]evaluationView, len(records))
	for i, rec := range records {
		views[i] = viewOf(rec)
	}
	httputil.WriteJSONOK(w, views)
}

func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	var buf bytes.Buffer
	err := report.RenderVarianceChart(&buf, s.recorder.History(0), report.ChartOptions{
		Title:               "Motion variance",
		StationaryThreshold: s.cfg.StationaryThreshold,
		SlowWalkThreshold:   s.cfg.SlowWalkThreshold,
	})
	if err != nil {
		httputil.InternalServerError(w, "failed to render chart")
		return
	}
	httputil.WriteHTML(w, buf.Bytes())
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.cfg)
}
