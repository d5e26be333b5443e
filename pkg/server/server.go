// Package server provides the HTTP API: dataset management, analysis jobs
// with SSE progress, drill-down queries, and export downloads.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/plantpulse/plantpulse/internal/model"
	"github.com/plantpulse/plantpulse/pkg/config"
	"github.com/plantpulse/plantpulse/pkg/engine"
	"github.com/plantpulse/plantpulse/pkg/errors"
	"github.com/plantpulse/plantpulse/pkg/export"
	"github.com/plantpulse/plantpulse/pkg/ingest"
	"github.com/plantpulse/plantpulse/pkg/store"
)

// maxUploadBytes caps dataset uploads.
const maxUploadBytes = 200 << 20

// Server handles HTTP requests.
type Server struct {
	engine  *engine.Engine
	cfg     config.ServerConfig
	dataset config.DatasetConfig
	logger  *zap.Logger
	broker  *SSEBroker
	mux     *http.ServeMux
	jobs    sync.Map // int64 -> *JobRecord
}

// JobRecord is the API view of an analysis job.
type JobRecord struct {
	ID        int64                  `json:"id"`
	Status    string                 `json:"status"` // running, completed, failed
	Percent   int                    `json:"percent"`
	StartTime time.Time              `json:"start_time"`
	EndTime   *time.Time             `json:"end_time,omitempty"`
	Result    *engine.FinalAggregate `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
	ErrorCode string                 `json:"error_code,omitempty"`

	mu sync.Mutex
}

// snapshot returns a copy safe to marshal while the pump updates the record.
func (j *JobRecord) snapshot() JobRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobRecord{
		ID:        j.ID,
		Status:    j.Status,
		Percent:   j.Percent,
		StartTime: j.StartTime,
		EndTime:   j.EndTime,
		Result:    j.Result,
		Error:     j.Error,
		ErrorCode: j.ErrorCode,
	}
}

// NewServer creates the HTTP server around an engine.
func NewServer(eng *engine.Engine, cfg config.ServerConfig, dataset config.DatasetConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:  eng,
		cfg:     cfg,
		dataset: dataset,
		logger:  logger,
		broker:  NewSSEBroker(),
		mux:     http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

// Broker exposes the SSE broker, so dataset watchers can publish reload
// notifications.
func (s *Server) Broker() *SSEBroker {
	return s.broker
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/dataset", s.handleDataset)
	s.mux.HandleFunc("/api/analyze", s.handleAnalyze)
	s.mux.HandleFunc("/api/job/", s.handleJob)
	s.mux.HandleFunc("/api/events", s.broker.SSEHandler(s.jobForInit))
	s.mux.HandleFunc("/api/export", s.handleExport)
	s.mux.HandleFunc("/api/drilldown/machine", s.handleDrilldownMachine)
	s.mux.HandleFunc("/api/drilldown/reason", s.handleDrilldownReason)
	s.mux.HandleFunc("/api/health", s.handleHealth)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := "*"
	if len(s.cfg.CORSOrigins) > 0 {
		origin = s.cfg.CORSOrigins[0]
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	s.mux.ServeHTTP(w, r)
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// --- Dataset ---

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		info, ok := s.engine.Dataset()
		if !ok {
			jsonError(w, "no dataset loaded", errors.CodeDatasetNotReady, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"dataset":        info,
			"machines":       s.engine.DistinctValues(store.DimMachine),
			"shifts":         s.engine.DistinctValues(store.DimShift),
			"machine_groups": s.engine.DistinctValues(store.DimMachineGroup),
			"operators":      s.engine.DistinctValues(store.DimOperator),
		})

	case http.MethodPost:
		s.handleDatasetUpload(w, r)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// uploadLoader adapts an uploaded request body to the engine's Loader.
type uploadLoader struct {
	name      string
	r         io.Reader
	delimiter rune
	logger    *zap.Logger
}

func (l *uploadLoader) Name() string { return l.name }

func (l *uploadLoader) Load(ctx context.Context) (*store.Store, error) {
	return ingest.NewParser(l.delimiter, l.logger).Parse(ctx, l.r)
}

func (s *Server) handleDatasetUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		jsonError(w, "failed to parse upload", errors.CodeInvalidFormat, http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "no file provided", errors.CodeInvalidFormat, http.StatusBadRequest)
		return
	}
	defer file.Close()

	loader := &uploadLoader{
		name:      header.Filename,
		r:         file,
		delimiter: s.dataset.DelimiterRune(),
		logger:    s.logger,
	}
	info, err := s.engine.LoadDataset(r.Context(), loader)
	if err != nil {
		jsonError(w, err.Error(), errors.CodeOf(err), http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"dataset": info})
}

// --- Analysis ---

type analyzeRequest struct {
	From         string   `json:"from"`
	To           string   `json:"to"`
	Machines     []string `json:"machines"`
	Shifts       []string `json:"shifts"`
	Operator     string   `json:"operator"`
	MachineGroup string   `json:"machineGroup"`
	Extended     bool     `json:"extended"`
	Mode         string   `json:"mode"`
}

func (req *analyzeRequest) criteria() (model.FilterCriteria, model.GroupingMode, error) {
	var c model.FilterCriteria
	var err error

	if req.From != "" {
		c.From, err = time.Parse(model.DayFormat, req.From)
		if err != nil {
			return c, 0, errors.Wrap(err, errors.CodeInvalidCriteria, "invalid from date")
		}
	}
	if req.To != "" {
		c.To, err = time.Parse(model.DayFormat, req.To)
		if err != nil {
			return c, 0, errors.Wrap(err, errors.CodeInvalidCriteria, "invalid to date")
		}
	}
	c.Machines = req.Machines
	c.Shifts = req.Shifts
	c.Operator = req.Operator
	c.MachineGroup = req.MachineGroup
	c.Extended = req.Extended

	mode, err := model.ParseGroupingMode(req.Mode)
	if err != nil {
		return c, 0, errors.Wrap(err, errors.CodeInvalidCriteria, "invalid grouping mode")
	}
	return c, mode, nil
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", errors.CodeInvalidCriteria, http.StatusBadRequest)
		return
	}
	criteria, mode, err := req.criteria()
	if err != nil {
		jsonError(w, err.Error(), errors.CodeOf(err), http.StatusBadRequest)
		return
	}

	// The job must outlive this request; progress is delivered over SSE.
	id, progress, results, err := s.engine.ApplyFilters(context.Background(), criteria, mode)
	if err != nil {
		jsonError(w, err.Error(), errors.CodeOf(err), http.StatusConflict)
		return
	}

	rec := &JobRecord{ID: id, Status: "running", StartTime: time.Now()}
	s.jobs.Store(id, rec)

	go s.pump(rec, progress, results)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"job_id": id})
}

// pump relays a job's progress and result to the SSE broker and records
// the terminal state.
func (s *Server) pump(rec *JobRecord, progress <-chan engine.ProgressEvent, results <-chan engine.Result) {
	for progress != nil || results != nil {
		select {
		case ev, ok := <-progress:
			if !ok {
				progress = nil
				continue
			}
			rec.mu.Lock()
			rec.Percent = ev.Percent
			rec.mu.Unlock()
			s.broker.PublishProgress(rec.ID, ev)

		case res, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			now := time.Now()
			rec.mu.Lock()
			rec.EndTime = &now
			if res.Err != nil {
				rec.Status = "failed"
				rec.Error = res.Err.Error()
				rec.ErrorCode = string(errors.CodeOf(res.Err))
			} else {
				rec.Status = "completed"
				rec.Percent = 100
				rec.Result = res.Final
			}
			rec.mu.Unlock()

			if res.Err != nil {
				s.broker.PublishError(rec.ID, res.Err)
			} else {
				s.broker.PublishComplete(rec.ID, res.Final)
			}
		}
	}
}

func (s *Server) jobForInit(id int64) interface{} {
	if v, ok := s.jobs.Load(id); ok {
		return v.(*JobRecord).snapshot()
	}
	return nil
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/job/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		jsonError(w, "invalid job id", errors.CodeInvalidCriteria, http.StatusBadRequest)
		return
	}
	v, ok := s.jobs.Load(id)
	if !ok {
		jsonError(w, "job not found", errors.CodeJobFailed, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, v.(*JobRecord).snapshot())
}

// --- Export ---

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("job_id"), 10, 64)
	if err != nil {
		jsonError(w, "job_id required", errors.CodeInvalidCriteria, http.StatusBadRequest)
		return
	}
	v, ok := s.jobs.Load(id)
	if !ok {
		jsonError(w, "job not found", errors.CodeJobFailed, http.StatusNotFound)
		return
	}
	rec := v.(*JobRecord)
	rec.mu.Lock()
	final := rec.Result
	rec.mu.Unlock()
	if final == nil {
		jsonError(w, "job has no result", errors.CodeJobFailed, http.StatusConflict)
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="plantpulse-%d.csv"`, id))
		err = export.WriteCSV(w, final)
	case "", "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="plantpulse-%d.xlsx"`, id))
		err = export.WriteXLSX(w, final)
	default:
		jsonError(w, "unknown format", errors.CodeInvalidCriteria, http.StatusBadRequest)
		return
	}
	if err != nil {
		s.logger.Warn("export failed", zap.Int64("job_id", id), zap.Error(err))
	}
}

// --- Drill-down ---

func (s *Server) handleDrilldownMachine(w http.ResponseWriter, r *http.Request) {
	machine := r.URL.Query().Get("machine")
	if machine == "" {
		jsonError(w, "machine required", errors.CodeInvalidCriteria, http.StatusBadRequest)
		return
	}
	criteria, err := criteriaFromQuery(r)
	if err != nil {
		jsonError(w, err.Error(), errors.CodeOf(err), http.StatusBadRequest)
		return
	}

	detail, err := s.engine.DrilldownMachine(criteria, machine)
	if err != nil {
		jsonError(w, err.Error(), errors.CodeOf(err), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDrilldownReason(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		jsonError(w, "reason required", errors.CodeInvalidCriteria, http.StatusBadRequest)
		return
	}
	criteria, err := criteriaFromQuery(r)
	if err != nil {
		jsonError(w, err.Error(), errors.CodeOf(err), http.StatusBadRequest)
		return
	}

	detail, err := s.engine.DrilldownReason(criteria, reason)
	if err != nil {
		jsonError(w, err.Error(), errors.CodeOf(err), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func criteriaFromQuery(r *http.Request) (model.FilterCriteria, error) {
	var c model.FilterCriteria
	var err error

	if v := r.URL.Query().Get("from"); v != "" {
		c.From, err = time.Parse(model.DayFormat, v)
		if err != nil {
			return c, errors.Wrap(err, errors.CodeInvalidCriteria, "invalid from date")
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		c.To, err = time.Parse(model.DayFormat, v)
		if err != nil {
			return c, errors.Wrap(err, errors.CodeInvalidCriteria, "invalid to date")
		}
	}
	if v := r.URL.Query().Get("shift"); v != "" {
		c.Shifts = []string{v}
	}
	c.Operator = r.URL.Query().Get("operator")
	c.MachineGroup = r.URL.Query().Get("machine_group")
	return c, nil
}

// --- Misc ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, ready := s.engine.Dataset()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"dataset_ready": ready,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code errors.Code, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
		"code":  string(code),
	})
}
