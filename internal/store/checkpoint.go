package store

import (
	"context"
	"log/slog"
	"time"
)

const defaultMaxWALSize = 64 * 1024 * 1024 // 64 MB

// StartCheckpointRoutine starts a background goroutine that checkpoints
// the WAL hourly, or immediately whenever its size exceeds maxWALSize
// (checked every 30s), the way the teacher's storage package does.
// Call the returned cancel function to stop it.
func (s *Store) StartCheckpointRoutine(ctx context.Context, logger *slog.Logger, dbPath string, checkpointInterval time.Duration, maxWALSize int64) context.CancelFunc {
	if checkpointInterval == 0 {
		checkpointInterval = 1 * time.Hour
	}
	if maxWALSize == 0 {
		maxWALSize = defaultMaxWALSize
	}

	routineCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(checkpointInterval)
		defer ticker.Stop()
		sizeTicker := time.NewTicker(30 * time.Second)
		defer sizeTicker.Stop()

		if size, err := s.WALSize(dbPath); err == nil && size > maxWALSize {
			s.checkpointAndLog(logger, "startup-size-triggered")
		}

		for {
			select {
			case <-routineCtx.Done():
				return
			case <-ticker.C:
				s.checkpointAndLog(logger, "periodic")
			case <-sizeTicker.C:
				size, err := s.WALSize(dbPath)
				if err != nil {
					logger.Error("failed to stat WAL file", slog.Any("error", err))
					continue
				}
				if size > maxWALSize {
					s.checkpointAndLog(logger, "size-triggered")
				}
			}
		}
	}()

	return cancel
}

func (s *Store) checkpointAndLog(logger *slog.Logger, reason string) {
	start := time.Now()
	if err := s.Checkpoint(context.Background()); err != nil {
		logger.Error("WAL checkpoint failed", slog.String("reason", reason), slog.Any("error", err))
		return
	}
	logger.Info("WAL checkpoint completed", slog.String("reason", reason), slog.Duration("duration", time.Since(start)))
}
