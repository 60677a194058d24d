// Package server exposes the memory subsystem as MCP tools over stdio.
package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/localrivet/gomcp/server"

	"github.com/etoslabs/memvault/internal/model"
	"github.com/etoslabs/memvault/internal/reconcile"
	"github.com/etoslabs/memvault/internal/record"
	"github.com/etoslabs/memvault/internal/retrieval"
)

// ErrNotInitialized is returned by Start before Initialize has run.
var ErrNotInitialized = errors.New("server not initialized")

// Options tunes the tool surface.
type Options struct {
	// DefaultTopK is used when a retrieve request leaves top_k unset.
	DefaultTopK int
	// ActiveRetrieval registers the memory_retrieve tool. When false the
	// assistant is expected to inject memory itself and the tool is
	// withheld.
	ActiveRetrieval bool
}

// MemoryToolServer handles MCP tool calls for saving, retrieving and
// reconciling memories.
type MemoryToolServer struct {
	records   *record.Store
	retriever *retrieval.Engine
	engine    *reconcile.Engine
	opts      Options
	log       *slog.Logger
	mcpServer server.Server
}

// NewMemoryToolServer creates a tool server over the given subsystem parts.
func NewMemoryToolServer(records *record.Store, retriever *retrieval.Engine, engine *reconcile.Engine, opts Options, log *slog.Logger) *MemoryToolServer {
	if log == nil {
		log = slog.Default()
	}
	return &MemoryToolServer{
		records:   records,
		retriever: retriever,
		engine:    engine,
		opts:      opts,
		log:       log,
	}
}

// Initialize registers the tool handlers with a fresh MCP server.
func (s *MemoryToolServer) Initialize() error {
	if s.records == nil || s.retriever == nil || s.engine == nil {
		return errors.New("one or more required dependencies are nil")
	}

	srv := server.NewServer("memvault")

	srv = srv.Tool(ToolSave, "Save a memory to the persistent store",
		s.handleSave)
	srv = srv.Tool(ToolArchive, "Archive a memory so retrieval skips it",
		s.handleArchive)
	srv = srv.Tool(ToolRestore, "Restore an archived memory",
		s.handleRestore)
	srv = srv.Tool(ToolDelete, "Delete a memory and its index entries",
		s.handleDelete)
	srv = srv.Tool(ToolRebuild, "Re-embed every memory from scratch",
		s.handleRebuild)
	srv = srv.Tool(ToolReconcile, "Embed memories the index is missing or has stale vectors for",
		s.handleReconcile)
	srv = srv.Tool(ToolStatus, "Report the state of the current or last embedding job",
		s.handleStatus)
	srv = srv.Tool(ToolCancel, "Cancel the running embedding job",
		s.handleCancel)

	toolCount := 8
	if s.opts.ActiveRetrieval {
		srv = srv.Tool(ToolRetrieve, "Retrieve memories relevant to a query",
			s.handleRetrieve)
		toolCount++
	}

	s.mcpServer = srv
	s.log.Info("memory tool server initialized", "tool_count", toolCount)
	return nil
}

// Start serves MCP over stdio until stdin closes.
func (s *MemoryToolServer) Start() error {
	if s.mcpServer == nil {
		return ErrNotInitialized
	}
	s.log.Info("starting memory tool server")
	return s.mcpServer.AsStdio().Run()
}

func (s *MemoryToolServer) handleSave(ctx *server.Context, req SaveRequest) (SaveResponse, error) {
	s.log.Info("processing memory_save", "content_length", len(req.Content))

	resp := SaveResponse{Status: "success"}
	rec, err := s.records.Add(context.Background(), req.Content)
	if err != nil {
		s.log.Error("memory_save failed", "err", err)
		resp.Status = "error"
		resp.Error = err.Error()
		return resp, nil
	}

	resp.ID = rec.ID
	s.log.Info("saved memory", "id", rec.ID)
	return resp, nil
}

func (s *MemoryToolServer) handleRetrieve(ctx *server.Context, req RetrieveRequest) (RetrieveResponse, error) {
	s.log.Info("processing memory_retrieve", "query", req.Query, "top_k", req.TopK)

	resp := RetrieveResponse{Status: "success"}

	p := retrieval.Params{
		Query: req.Query,
		TopK:  req.TopK,
		Mode:  retrieval.ModeVector,
	}
	if req.TopK == 0 {
		p.TopK = s.opts.DefaultTopK
	}
	if req.Mode == string(retrieval.ModeKeyword) {
		p.Mode = retrieval.ModeKeyword
	}

	results, err := s.retriever.Retrieve(context.Background(), p)
	if err != nil {
		s.log.Error("memory_retrieve failed", "err", err)
		resp.Status = "error"
		resp.Error = err.Error()
		return resp, nil
	}

	resp.Results = results
	s.log.Info("retrieved memories", "count", len(results))
	return resp, nil
}

func (s *MemoryToolServer) handleArchive(ctx *server.Context, req IDRequest) (AckResponse, error) {
	return s.setArchived(req.ID, true, "memory_archive")
}

func (s *MemoryToolServer) handleRestore(ctx *server.Context, req IDRequest) (AckResponse, error) {
	return s.setArchived(req.ID, false, "memory_restore")
}

func (s *MemoryToolServer) setArchived(id string, archived bool, tool string) (AckResponse, error) {
	s.log.Info("processing "+tool, "id", id)

	resp := AckResponse{Status: "success"}
	if err := s.records.SetArchived(context.Background(), id, archived); err != nil {
		s.log.Error(tool+" failed", "id", id, "err", err)
		resp.Status = "error"
		resp.Error = err.Error()
	}
	return resp, nil
}

func (s *MemoryToolServer) handleDelete(ctx *server.Context, req IDRequest) (AckResponse, error) {
	s.log.Info("processing memory_delete", "id", req.ID)

	resp := AckResponse{Status: "success"}
	if err := s.records.Delete(context.Background(), req.ID); err != nil {
		s.log.Error("memory_delete failed", "id", req.ID, "err", err)
		resp.Status = "error"
		resp.Error = err.Error()
	}
	return resp, nil
}

func (s *MemoryToolServer) handleRebuild(ctx *server.Context, req JobRequest) (JobResponse, error) {
	return s.triggerJob("memory_rebuild", s.engine.TriggerFullRebuild)
}

func (s *MemoryToolServer) handleReconcile(ctx *server.Context, req JobRequest) (JobResponse, error) {
	return s.triggerJob("memory_reconcile", s.engine.TriggerReconcile)
}

func (s *MemoryToolServer) triggerJob(tool string, trigger func(context.Context) error) (JobResponse, error) {
	s.log.Info("processing " + tool)

	resp := JobResponse{Status: "success"}
	err := trigger(context.Background())
	switch {
	case errors.Is(err, reconcile.ErrBusy):
		resp.Status = "error"
		resp.Busy = true
		resp.Error = err.Error()
	case err != nil:
		s.log.Error(tool+" failed", "err", err)
		resp.Status = "error"
		resp.Error = err.Error()
	}
	if job, ok := s.engine.Snapshot(); ok {
		resp.Job = snapshot(job)
	}
	return resp, nil
}

func (s *MemoryToolServer) handleStatus(ctx *server.Context, req JobRequest) (JobResponse, error) {
	resp := JobResponse{Status: "success"}
	if job, ok := s.engine.Snapshot(); ok {
		resp.Job = snapshot(job)
		if job.Terminal() {
			s.engine.Acknowledge()
		}
	}
	return resp, nil
}

func (s *MemoryToolServer) handleCancel(ctx *server.Context, req JobRequest) (JobResponse, error) {
	s.log.Info("processing memory_cancel")

	resp := JobResponse{Status: "success"}
	if !s.engine.Cancel() {
		resp.Status = "error"
		resp.Error = "no running job"
	}
	if job, ok := s.engine.Snapshot(); ok {
		resp.Job = snapshot(job)
	}
	return resp, nil
}

func snapshot(job model.Job) *JobSnapshot {
	snap := &JobSnapshot{
		ID:          job.ID,
		Kind:        string(job.Kind),
		Phase:       string(job.Phase),
		Total:       job.Total,
		Processed:   job.Processed,
		CurrentItem: job.CurrentItem,
		Err:         job.Err,
	}
	if job.Summary != nil {
		snap.Summary = &JobSummary{
			Processed: job.Summary.Processed,
			Chunks:    job.Summary.Chunks,
		}
	}
	return snap
}
