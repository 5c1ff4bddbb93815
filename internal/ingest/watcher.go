package ingest

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher re-ingests documents when they change on disk. Events are debounced
// so editors that write in several steps trigger one ingestion.
type Watcher struct {
	ingestor  *Ingestor
	namespace string
	debounce  time.Duration
	logger    *zap.Logger
}

func NewWatcher(ingestor *Ingestor, namespace string, logger *zap.Logger) *Watcher {
	return &Watcher{
		ingestor:  ingestor,
		namespace: namespace,
		debounce:  500 * time.Millisecond,
		logger:    logger,
	}
}

// Watch blocks until ctx is cancelled, re-ingesting changed files in dir.
func (w *Watcher) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}
	w.logger.Info("watching for document changes", zap.String("dir", dir))

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isDocFile(event.Name) {
				continue
			}
			pending[event.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			for path := range pending {
				if _, err := w.ingestor.IngestFile(ctx, path, w.namespace); err != nil {
					w.logger.Error("re-ingestion failed", zap.String("path", path), zap.Error(err))
					continue
				}
				w.logger.Info("document re-ingested", zap.String("path", path))
			}
			pending = make(map[string]struct{})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", zap.Error(err))
		}
	}
}
