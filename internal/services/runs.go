package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"dredge/internal/model"
	"dredge/internal/objstore"
	"dredge/internal/store"
)

// Presigner produces time-limited GET URLs for stored objects.
// Satisfied by *objstore.Client.
type Presigner interface {
	PresignGet(ctx context.Context, path string) (string, error)
}

// RunResult aggregates a run with everything it produced.
type RunResult struct {
	Run         *model.TaskRun
	Documents   []model.Document
	Images      []model.DocumentImage
	Attachments []model.DocumentAttachment
}

// RunLogs is the log-access view: presigned URLs for the run manifest
// and, when the run had failures, the error log. URL fields are empty
// when the object could not be signed.
type RunLogs struct {
	RunID       uuid.UUID
	StoragePath string
	LogsPath    string
	ManifestURL string
	ErrorLogURL string
}

// RunService owns the API-side run lifecycle: starting a run (the
// pending row is the work-queue entry the worker claims), reading
// status, and assembling result and log views.
type RunService interface {
	Start(ctx context.Context, taskID uuid.UUID) (*model.TaskRun, error)
	Get(ctx context.Context, id uuid.UUID) (*model.TaskRun, error)
	ListByTask(ctx context.Context, taskID uuid.UUID, limit, offset int) ([]model.TaskRun, error)
	Result(ctx context.Context, runID uuid.UUID) (*RunResult, error)
	Logs(ctx context.Context, runID uuid.UUID) (*RunLogs, error)
}

type runService struct {
	st     *store.Store
	signer Presigner
}

func NewRunService(st *store.Store, signer Presigner) RunService {
	return &runService{st: st, signer: signer}
}

func (s *runService) Start(ctx context.Context, taskID uuid.UUID) (*model.TaskRun, error) {
	task, err := s.st.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, eris.Wrap(ErrNotFound, "task")
	}

	run, err := s.st.CreateRun(ctx, taskID)
	if err != nil {
		return nil, err
	}
	zap.L().Info("run enqueued",
		zap.String("run_id", run.ID.String()),
		zap.String("task_id", taskID.String()))
	return run, nil
}

func (s *runService) Get(ctx context.Context, id uuid.UUID) (*model.TaskRun, error) {
	return s.st.GetRun(ctx, id)
}

func (s *runService) ListByTask(ctx context.Context, taskID uuid.UUID, limit, offset int) ([]model.TaskRun, error) {
	task, err := s.st.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, eris.Wrap(ErrNotFound, "task")
	}
	return s.st.ListRunsByTask(ctx, taskID, limit, offset)
}

func (s *runService) Result(ctx context.Context, runID uuid.UUID) (*RunResult, error) {
	run, err := s.st.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, eris.Wrap(ErrNotFound, "run")
	}

	docs, err := s.st.ListDocumentsByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	images, err := s.st.ListImagesByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	attachments, err := s.st.ListAttachmentsByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	return &RunResult{Run: run, Documents: docs, Images: images, Attachments: attachments}, nil
}

// Logs presigns best-effort: an unsignable object leaves its URL empty
// rather than failing the request, since the paths themselves are still
// useful for direct bucket access.
func (s *runService) Logs(ctx context.Context, runID uuid.UUID) (*RunLogs, error) {
	run, err := s.st.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if run.LogsPath == "" {
		return nil, eris.Wrap(ErrNotFound, "logs not available for this run")
	}

	logs := &RunLogs{
		RunID:       run.ID,
		StoragePath: run.StoragePath,
		LogsPath:    run.LogsPath,
	}

	if run.ManifestPath != "" {
		if url, err := s.signer.PresignGet(ctx, run.ManifestPath); err == nil {
			logs.ManifestURL = url
		} else {
			zap.L().Warn("presign manifest failed",
				zap.String("run_id", run.ID.String()),
				zap.Error(err))
		}
	}
	if run.URLsFailed > 0 {
		errorLogPath := strings.TrimSuffix(run.LogsPath, "/") + "/" + objstore.ErrorLogFilename
		if url, err := s.signer.PresignGet(ctx, errorLogPath); err == nil {
			logs.ErrorLogURL = url
		} else {
			zap.L().Warn("presign error log failed",
				zap.String("run_id", run.ID.String()),
				zap.Error(err))
		}
	}
	return logs, nil
}
