package services

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"dredge/internal/store"
)

// SeedTasks applies task definition files at startup. Idempotent and safe
// to run on every boot: a file whose task name already exists is skipped,
// never updated, so operator edits to live tasks survive restarts.
func SeedTasks(ctx context.Context, paths []string, st *store.Store, tasks TaskService) error {
	for _, path := range paths {
		if err := seedTask(ctx, path, st, tasks); err != nil {
			return eris.Wrapf(err, "seed task from %s", path)
		}
	}
	return nil
}

func seedTask(ctx context.Context, path string, st *store.Store, tasks TaskService) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrap(err, "read seed file")
	}

	format := FormatJSON
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		format = FormatYAML
	}

	transfer, err := decodeTransfer(content, format)
	if err != nil {
		return err
	}

	existing, err := st.GetTaskByName(ctx, transfer.Name)
	if err != nil {
		return err
	}
	if existing != nil {
		zap.L().Debug("seed task already present",
			zap.String("name", transfer.Name),
			zap.String("task_id", existing.ID.String()))
		return nil
	}

	in, err := transfer.Input()
	if err != nil {
		return err
	}
	task, err := tasks.Create(ctx, in)
	if err != nil {
		return err
	}
	zap.L().Info("seeded task",
		zap.String("name", task.Name),
		zap.String("task_id", task.ID.String()))
	return nil
}
