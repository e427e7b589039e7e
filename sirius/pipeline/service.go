package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/SiriusScan/go-ingest/sirius"
	"github.com/SiriusScan/go-ingest/sirius/events"
	"github.com/SiriusScan/go-ingest/sirius/kpi"
	"github.com/SiriusScan/go-ingest/sirius/metadata"
	"github.com/SiriusScan/go-ingest/sirius/parser"
	"github.com/SiriusScan/go-ingest/sirius/postgres/models"
	"github.com/SiriusScan/go-ingest/sirius/snapshot"
	"github.com/SiriusScan/go-ingest/sirius/store"
)

// Job is an upload job message.
type Job struct {
	FileID    uint   `json:"file_id"`
	ToolID    uint   `json:"tool_id"`
	UserID    uint   `json:"user_id"`
	AuthToken string `json:"auth_token"`
}

// Notification is published after an upload reaches a terminal status.
type Notification struct {
	FileID    uint   `json:"file_id"`
	Status    string `json:"status"`
	RunID     string `json:"run_id,omitempty"`
	Accepted  int    `json:"accepted"`
	Rejected  int    `json:"rejected"`
	KPIValues int    `json:"kpi_values"`
	Message   string `json:"message,omitempty"`
}

// MetadataSource resolves file and tool records.
type MetadataSource interface {
	GetFile(ctx context.Context, id uint, token string) (*metadata.FileInfo, error)
	GetTool(ctx context.Context, id uint, token string) (*metadata.ToolInfo, error)
}

// UploadStore persists upload status and normalized findings.
type UploadStore interface {
	SetFileStatus(ctx context.Context, fileID uint, status string) error
	SaveFindings(ctx context.Context, fileID, toolID uint, pairs []sirius.Pair) (int, error)
}

// KPIRunner calculates and appends KPI values for a batch.
type KPIRunner interface {
	Run(ctx context.Context, pairs []sirius.Pair) (*kpi.Result, error)
}

// EventRecorder stores audit events.
type EventRecorder interface {
	Record(ctx context.Context, e events.NewEvent) (*models.Event, error)
}

// Publisher sends JSON messages to a queue.
type Publisher interface {
	PublishJSON(ctx context.Context, qName string, v any) error
}

// SnapshotWriter stores KPI run snapshots.
type SnapshotWriter interface {
	CreateSnapshot(ctx context.Context, in snapshot.Input) (*snapshot.RunSnapshot, error)
}

// ServiceDeps are the collaborators of a Service. Metadata, Uploads and
// Orchestrator are required; the rest are skipped when nil.
type ServiceDeps struct {
	Orchestrator *Orchestrator
	Metadata     MetadataSource
	Uploads      UploadStore
	KPI          KPIRunner
	Events       EventRecorder
	Snapshots    SnapshotWriter
	StatusCache  store.KVStore
	Publisher    Publisher
	NotifyQueue  string
	ReadFile     func(path string) ([]byte, error)
	Logger       *slog.Logger
}

// Outcome is the result of one job.
type Outcome struct {
	FileID     uint
	Status     string
	Batch      *BatchResult
	KPI        *kpi.Result
	SnapshotID string
}

// Service runs upload jobs end to end: metadata lookup, parsing, persistence
// of findings and status, KPI calculation and notification.
type Service struct {
	deps   ServiceDeps
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Orchestrator == nil || deps.Metadata == nil || deps.Uploads == nil {
		return nil, errors.New("pipeline service requires an orchestrator, a metadata source and an upload store")
	}
	if deps.ReadFile == nil {
		deps.ReadFile = os.ReadFile
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{deps: deps, logger: logger.With("component", "ingest_service")}, nil
}

// HandleMessage decodes a queue delivery and runs it. Errors are logged; the
// upload status already reflects them.
func (s *Service) HandleMessage(ctx context.Context, body []byte) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		s.logger.Error("Discarding malformed upload job", "error", err)
		return
	}
	if _, err := s.Process(ctx, job); err != nil {
		s.logger.Warn("Upload job failed", "file_id", job.FileID, "error", err)
	}
}

// Process runs one job to a terminal upload status.
func (s *Service) Process(ctx context.Context, job Job) (*Outcome, error) {
	logger := s.logger.With("file_id", job.FileID, "tool_id", job.ToolID)
	logger.Info("Starting upload job")
	out := &Outcome{FileID: job.FileID}

	file, err := s.deps.Metadata.GetFile(ctx, job.FileID, job.AuthToken)
	if err != nil {
		return out, s.fail(ctx, job, out, fmt.Errorf("failed to get file info: %w", err))
	}
	tool, err := s.deps.Metadata.GetTool(ctx, job.ToolID, job.AuthToken)
	if err != nil {
		return out, s.fail(ctx, job, out, fmt.Errorf("failed to get tool info: %w", err))
	}

	content, err := s.deps.ReadFile(file.FilePath)
	if err != nil {
		return out, s.fail(ctx, job, out, fmt.Errorf("error reading file %s: %w", file.FilePath, err))
	}

	batch, err := s.deps.Orchestrator.Process(ctx, Upload{
		FileID:    job.FileID,
		Filename:  file.Filename,
		Content:   content,
		Tool:      tool.Descriptor(),
		AuthToken: job.AuthToken,
	})
	out.Batch = batch
	if err != nil {
		return out, s.fail(ctx, job, out, err)
	}

	if _, err := s.deps.Uploads.SaveFindings(ctx, job.FileID, job.ToolID, batch.Findings); err != nil {
		return out, s.fail(ctx, job, out, err)
	}
	if err := s.deps.Uploads.SetFileStatus(ctx, job.FileID, models.FileStatusProcessed); err != nil {
		return out, s.fail(ctx, job, out, err)
	}
	out.Status = models.FileStatusProcessed

	if batch.Rejected() > 0 {
		s.record(ctx, events.NewEvent{
			EventType:   models.EventTypeFindingsRejected,
			Severity:    models.SeverityWarning,
			Title:       fmt.Sprintf("%d findings failed normalization", batch.Rejected()),
			EntityType:  models.EntityTypeFile,
			EntityID:    strconv.FormatUint(uint64(job.FileID), 10),
			Metadata:    map[string]interface{}{"rejections": batch.Rejections},
			Description: file.Filename,
		})
	}

	s.runKPIs(ctx, job, out)

	s.cacheStatus(ctx, out, "")
	s.record(ctx, events.NewEvent{
		EventType:  models.EventTypeUploadProcessed,
		Severity:   models.SeverityInfo,
		Title:      fmt.Sprintf("Processed %s", file.Filename),
		EntityType: models.EntityTypeFile,
		EntityID:   strconv.FormatUint(uint64(job.FileID), 10),
		Metadata: map[string]interface{}{
			"format":    batch.Format,
			"accepted":  batch.Accepted(),
			"rejected":  batch.Rejected(),
			"truncated": batch.Extraction.Truncated,
		},
	})
	s.notify(ctx, out, "")

	logger.Info("Upload job completed",
		"accepted", batch.Accepted(), "rejected", batch.Rejected(), "kpi_run", out.runID())
	return out, nil
}

func (s *Service) runKPIs(ctx context.Context, job Job, out *Outcome) {
	if s.deps.KPI == nil {
		return
	}
	started := time.Now()
	result, err := s.deps.KPI.Run(ctx, out.Batch.Findings)
	out.KPI = result
	if err != nil {
		s.record(ctx, events.NewEvent{
			EventType:   models.EventTypeKPIRunFailed,
			Severity:    models.SeverityError,
			Title:       "KPI calculation failed",
			Description: err.Error(),
			EntityType:  models.EntityTypeFile,
			EntityID:    strconv.FormatUint(uint64(job.FileID), 10),
		})
		return
	}

	s.record(ctx, events.NewEvent{
		EventType:  models.EventTypeKPIRunCompleted,
		Severity:   models.SeverityInfo,
		Title:      result.Message,
		EntityType: models.EntityTypeKPIRun,
		EntityID:   result.RunID,
		Metadata:   map[string]interface{}{"file_id": job.FileID, "values": len(result.CalculatedKPIs)},
	})

	if s.deps.Snapshots == nil {
		return
	}
	snap, err := s.deps.Snapshots.CreateSnapshot(ctx, snapshot.Input{
		FileID:   job.FileID,
		Findings: out.Batch.Findings,
		Result:   result,
		Metadata: snapshot.SnapshotMetadata{
			Format:             out.Batch.Format,
			Extracted:          out.Batch.Extraction.Emitted,
			Rejected:           out.Batch.Rejected(),
			Truncated:          out.Batch.Extraction.Truncated,
			SnapshotDurationMs: time.Since(started).Milliseconds(),
		},
	})
	if err != nil {
		s.logger.Warn("Failed to store KPI run snapshot", "run_id", result.RunID, "error", err)
		return
	}
	out.SnapshotID = snap.SnapshotID
}

// terminalWriteTimeout bounds the status writes made by fail.
const terminalWriteTimeout = 10 * time.Second

// fail marks the upload failed and returns err. The writes run on a context
// detached from ctx so a job interrupted by shutdown still reaches failed.
func (s *Service) fail(ctx context.Context, job Job, out *Outcome, err error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	out.Status = models.FileStatusFailed
	message := err.Error()
	if text, ok := parser.Remediation(err); ok {
		message = text
	}

	if serr := s.deps.Uploads.SetFileStatus(ctx, job.FileID, models.FileStatusFailed); serr != nil {
		s.logger.Error("Failed to mark upload failed", "file_id", job.FileID, "error", serr)
	}

	eventType := models.EventTypeUploadFailed
	var extErr *metadata.ExternalServiceError
	if errors.As(err, &extErr) && extErr.Timeout {
		eventType = models.EventTypeMetadataTimeout
	}
	s.record(ctx, events.NewEvent{
		EventType:   eventType,
		Severity:    models.SeverityError,
		Title:       "Upload processing failed",
		Description: message,
		EntityType:  models.EntityTypeFile,
		EntityID:    strconv.FormatUint(uint64(job.FileID), 10),
		Metadata:    map[string]interface{}{"error": err.Error()},
	})
	s.cacheStatus(ctx, out, message)
	s.notify(ctx, out, message)
	return err
}

func (s *Service) cacheStatus(ctx context.Context, out *Outcome, message string) {
	if s.deps.StatusCache == nil {
		return
	}
	status := store.UploadStatus{
		FileID:  out.FileID,
		Status:  out.Status,
		RunID:   out.runID(),
		Message: message,
	}
	if b := out.Batch; b != nil {
		status.Stage = string(b.Stage)
		status.Format = b.Format
		status.Accepted = b.Accepted()
		status.Rejected = b.Rejected()
		status.Truncated = b.Extraction.Truncated
	}
	if err := store.SaveUploadStatus(ctx, s.deps.StatusCache, status); err != nil {
		s.logger.Warn("Failed to cache upload status", "file_id", out.FileID, "error", err)
	}
}

func (s *Service) record(ctx context.Context, e events.NewEvent) {
	if s.deps.Events == nil {
		return
	}
	e.Subcomponent = "pipeline"
	if _, err := s.deps.Events.Record(ctx, e); err != nil {
		s.logger.Warn("Failed to record event", "event_type", e.EventType, "error", err)
	}
}

func (s *Service) notify(ctx context.Context, out *Outcome, message string) {
	if s.deps.Publisher == nil || s.deps.NotifyQueue == "" {
		return
	}
	n := Notification{FileID: out.FileID, Status: out.Status, RunID: out.runID(), Message: message}
	if out.Batch != nil {
		n.Accepted = out.Batch.Accepted()
		n.Rejected = out.Batch.Rejected()
	}
	if out.KPI != nil {
		n.KPIValues = len(out.KPI.CalculatedKPIs)
	}
	if err := s.deps.Publisher.PublishJSON(ctx, s.deps.NotifyQueue, n); err != nil {
		s.logger.Warn("Failed to publish notification", "queue", s.deps.NotifyQueue, "error", err)
	}
}

func (o *Outcome) runID() string {
	if o.KPI == nil || !o.KPI.Success {
		return ""
	}
	return o.KPI.RunID
}
