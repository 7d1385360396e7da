// server.go — HTTP daemon exposing the UI message surface.
// POST /rpc carries typed JSON-RPC messages; /bridge/poll and /bridge/result
// are the extension's command transport; GET /healthz reports daemon state.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/replaydeck/replaydeck/internal/bridge"
	"github.com/replaydeck/replaydeck/internal/browser"
	"github.com/replaydeck/replaydeck/internal/csvmap"
	"github.com/replaydeck/replaydeck/internal/logging"
	"github.com/replaydeck/replaydeck/internal/migrate"
	"github.com/replaydeck/replaydeck/internal/playback"
	"github.com/replaydeck/replaydeck/internal/recorder"
	"github.com/replaydeck/replaydeck/internal/recording"
	"github.com/replaydeck/replaydeck/internal/telemetry"
	"github.com/replaydeck/replaydeck/internal/util"
)

// Server hosts the message-passing surface.
type Server struct {
	recorder      *recorder.Recorder
	store         *recording.Store
	teleStore     *telemetry.Store
	teleLogger    *telemetry.Logger
	bridge        *bridge.Bridge
	newController func() *playback.Controller
	logger        *slog.Logger
	startedAt     time.Time

	mu   sync.Mutex
	runs map[string]*activeRun
}

type activeRun struct {
	controller *playback.Controller
	cancel     context.CancelFunc

	mu       sync.Mutex
	result   *playback.RunResult
	err      error
	done     bool
	progress []playback.Progress
}

// NewServer wires the daemon's message surface.
func NewServer(
	rec *recorder.Recorder,
	store *recording.Store,
	teleStore *telemetry.Store,
	teleLogger *telemetry.Logger,
	controlBridge *bridge.Bridge,
	newController func() *playback.Controller,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		recorder:      rec,
		store:         store,
		teleStore:     teleStore,
		teleLogger:    teleLogger,
		bridge:        controlBridge,
		newController: newController,
		logger:        logging.WithComponent(logger, "api"),
		startedAt:     time.Now(),
		runs:          make(map[string]*activeRun),
	}
}

// Routes returns the daemon's HTTP handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rpc", s.handleRPC)
	mux.HandleFunc("POST /bridge/poll", s.handleBridgePoll)
	mux.HandleFunc("POST /bridge/result", s.handleBridgeResult)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, JSONRPCResponse{
			JSONRPC: "2.0",
			Error:   &JSONRPCError{Code: CodeParseError, Message: "invalid JSON"},
		})
		return
	}

	result, rpcErr := s.dispatch(r.Context(), req)
	response := JSONRPCResponse{JSONRPC: "2.0", ID: req.ID}
	if rpcErr != nil {
		response.Error = rpcErr
	} else {
		encoded, err := json.Marshal(result)
		if err != nil {
			response.Error = &JSONRPCError{Code: CodeInternalError, Message: err.Error()}
		} else {
			response.Result = encoded
		}
	}
	writeResponse(w, response)
}

func (s *Server) dispatch(ctx context.Context, req JSONRPCRequest) (any, *JSONRPCError) {
	switch req.Method {
	case "record.start":
		return s.recordStart(req.Params)
	case "record.action":
		return s.recordAction(req.Params)
	case "record.stop":
		return s.recordStop(req.Params)
	case "recordings.list":
		return s.recordingsList()
	case "playback.start":
		return s.playbackStart(req.Params)
	case "playback.pause":
		return s.playbackControl(req.Params, func(run *activeRun) { run.controller.Pause() })
	case "playback.resume":
		return s.playbackControl(req.Params, func(run *activeRun) { run.controller.Resume() })
	case "playback.stop":
		return s.playbackControl(req.Params, func(run *activeRun) { run.controller.Stop() })
	case "playback.status":
		return s.playbackStatus(req.Params)
	case "telemetry.query":
		return s.telemetryQuery(ctx, req.Params)
	case "telemetry.metrics":
		return s.telemetryMetrics(ctx, req.Params)
	case "telemetry.export":
		return s.telemetryExport(ctx)
	default:
		return nil, &JSONRPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)}
	}
}

func (s *Server) recordStart(params json.RawMessage) (any, *JSONRPCError) {
	var p recordStartParams
	if err := json.Unmarshal(params, &p); err != nil || p.Tab == "" {
		return nil, invalidParams("record.start requires a tab")
	}
	id, err := s.recorder.Start(browser.TabID(p.Tab), p.Name, p.URL)
	if err != nil {
		return nil, internalError(err)
	}
	return map[string]string{"recording_id": id}, nil
}

func (s *Server) recordAction(params json.RawMessage) (any, *JSONRPCError) {
	var p recordActionParams
	if err := json.Unmarshal(params, &p); err != nil || p.Tab == "" {
		return nil, invalidParams("record.action requires a tab and action")
	}
	if err := s.recorder.Capture(browser.TabID(p.Tab), p.Action); err != nil {
		return nil, internalError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) recordStop(params json.RawMessage) (any, *JSONRPCError) {
	var p recordStopParams
	if err := json.Unmarshal(params, &p); err != nil || p.Tab == "" {
		return nil, invalidParams("record.stop requires a tab")
	}
	rec, err := s.recorder.Stop(browser.TabID(p.Tab))
	if err != nil {
		return nil, internalError(err)
	}
	return rec, nil
}

func (s *Server) recordingsList() (any, *JSONRPCError) {
	ids, err := s.store.List()
	if err != nil {
		return nil, internalError(err)
	}
	return map[string]any{"recordings": ids}, nil
}

func (s *Server) playbackStart(params json.RawMessage) (any, *JSONRPCError) {
	var p playbackStartParams
	if err := json.Unmarshal(params, &p); err != nil || p.Tab == "" || p.RecordingID == "" {
		return nil, invalidParams("playback.start requires a tab and recording_id")
	}

	_, raw, err := s.store.Load(p.RecordingID)
	if err != nil {
		return nil, internalError(err)
	}
	migrated, err := migrate.Apply(raw)
	if err != nil {
		return nil, internalError(err)
	}
	for _, warning := range migrated.Warnings {
		s.logger.Warn("recording migration repair",
			logging.FieldRecordingID, p.RecordingID, "repair", warning)
	}

	var table *csvmap.Table
	if p.CSV != "" {
		table, err = csvmap.Parse(p.CSV)
		if err != nil {
			return nil, invalidParams(err.Error())
		}
	} else if migrated.Recording.CSV != nil {
		table = &csvmap.Table{
			Headers: migrated.Recording.CSV.Headers,
			Rows:    migrated.Recording.CSV.Rows,
		}
	}

	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.Background())
	run := &activeRun{controller: s.newController(), cancel: cancel}

	s.mu.Lock()
	s.runs[runID] = run
	s.mu.Unlock()

	run.controller.OnProgress(func(progress playback.Progress) {
		run.mu.Lock()
		run.progress = append(run.progress, progress)
		if len(run.progress) > 200 {
			run.progress = run.progress[len(run.progress)-200:]
		}
		run.mu.Unlock()
	})

	rec := migrated.Recording
	util.SafeGo(func() {
		defer cancel()
		result, runErr := run.controller.Run(runCtx, browser.TabID(p.Tab), &rec, table, playback.Options{
			RunID:       runID,
			StopOnError: p.StopOnError,
			CSVStrict:   p.CSVStrict,
			CSVTrim:     true,
		})
		run.mu.Lock()
		run.result = result
		run.err = runErr
		run.done = true
		run.mu.Unlock()
	})

	return map[string]string{"run_id": runID}, nil
}

func (s *Server) playbackControl(params json.RawMessage, apply func(*activeRun)) (any, *JSONRPCError) {
	run, rpcErr := s.lookupRun(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	apply(run)
	return map[string]bool{"ok": true}, nil
}

func (s *Server) playbackStatus(params json.RawMessage) (any, *JSONRPCError) {
	run, rpcErr := s.lookupRun(params)
	if rpcErr != nil {
		return nil, rpcErr
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	status := map[string]any{
		"state":    string(run.controller.State()),
		"done":     run.done,
		"progress": run.progress,
	}
	if run.result != nil {
		status["result"] = run.result
	}
	if run.err != nil {
		status["error"] = run.err.Error()
	}
	return status, nil
}

func (s *Server) lookupRun(params json.RawMessage) (*activeRun, *JSONRPCError) {
	var p runParams
	if err := json.Unmarshal(params, &p); err != nil || p.RunID == "" {
		return nil, invalidParams("run_id is required")
	}
	s.mu.Lock()
	run, ok := s.runs[p.RunID]
	s.mu.Unlock()
	if !ok {
		return nil, &JSONRPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("unknown run %q", p.RunID)}
	}
	return run, nil
}

func (s *Server) telemetryQuery(ctx context.Context, params json.RawMessage) (any, *JSONRPCError) {
	var p telemetryQueryParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("invalid telemetry query")
		}
	}
	events, err := s.teleStore.QueryEvents(ctx, telemetry.Query{
		RunID:        p.RunID,
		StrategyType: p.StrategyType,
		Success:      p.Success,
		From:         util.ParseTimestamp(p.From),
		To:           util.ParseTimestamp(p.To),
		Limit:        p.Limit,
		Offset:       p.Offset,
	})
	if err != nil {
		return nil, internalError(err)
	}
	return map[string]any{"events": events}, nil
}

func (s *Server) telemetryMetrics(ctx context.Context, params json.RawMessage) (any, *JSONRPCError) {
	var p telemetryQueryParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("invalid telemetry query")
		}
	}
	from := util.ParseTimestamp(p.From)
	to := util.ParseTimestamp(p.To)
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -7)
	}
	metrics, err := s.teleStore.Metrics(ctx, from, to)
	if err != nil {
		return nil, internalError(err)
	}
	health, err := s.teleStore.Health(ctx, time.Now())
	if err != nil {
		return nil, internalError(err)
	}
	return map[string]any{"metrics": metrics, "health": health}, nil
}

func (s *Server) telemetryExport(ctx context.Context) (any, *JSONRPCError) {
	doc, err := s.teleStore.Export(ctx, time.Now())
	if err != nil {
		return nil, internalError(err)
	}
	return doc, nil
}

func (s *Server) handleBridgePoll(w http.ResponseWriter, r *http.Request) {
	var p bridgePollParams
	_ = json.NewDecoder(r.Body).Decode(&p)
	if p.Max <= 0 {
		p.Max = 20
	}
	commands := s.bridge.PollCommands(p.Max)
	writeJSON(w, map[string]any{"commands": commands})
}

func (s *Server) handleBridgeResult(w http.ResponseWriter, r *http.Request) {
	var p bridgeResultParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	s.bridge.SubmitResult(p.ID, p.Result, p.Error)
	writeJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":    "ok",
		"uptime_ms": time.Since(s.startedAt).Milliseconds(),
	}
	if s.teleLogger != nil {
		health["buffered_events"] = s.teleLogger.BufferedCount()
	}
	s.mu.Lock()
	health["runs"] = len(s.runs)
	s.mu.Unlock()
	writeJSON(w, health)
}

func writeResponse(w http.ResponseWriter, response JSONRPCResponse) {
	writeJSON(w, response)
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}

func invalidParams(message string) *JSONRPCError {
	return &JSONRPCError{Code: CodeInvalidParams, Message: message}
}

func internalError(err error) *JSONRPCError {
	return &JSONRPCError{Code: CodeInternalError, Message: err.Error()}
}
