package daemon

import (
	"context"
	"time"

	"voxtape/internal/capture"
	"voxtape/internal/logging"
)

const janitorInterval = 10 * time.Minute

func (d *Daemon) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		if _, err := d.ExpireRecordings(ctx); err != nil && ctx.Err() == nil {
			d.logger.Warn("expiry sweep failed", logging.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ExpireRecordings deletes the files of recordings whose retention window has
// closed and marks them expired. It returns how many were expired.
func (d *Daemon) ExpireRecordings(ctx context.Context) (int, error) {
	recs, err := d.store.Expired(ctx, d.now())
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, rec := range recs {
		if err := capture.RemoveFileStreams(rec.RecordingsDir, rec.ID); err != nil {
			logging.WarnWithContext(d.logger, "failed to remove expired recording", "expiry_remove_failed",
				logging.RecordingID(rec.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "retried on the next sweep"),
			)
			continue
		}
		if err := d.store.MarkExpired(ctx, rec.ID); err != nil {
			d.logger.Warn("failed to mark recording expired",
				logging.RecordingID(rec.ID),
				logging.Error(err),
			)
			continue
		}
		expired++
		d.logger.Info("recording expired",
			logging.String(logging.FieldEventType, "recording_expired"),
			logging.RecordingID(rec.ID),
		)
	}
	return expired, nil
}
