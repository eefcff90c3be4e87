package capture

import (
	"time"

	"voxtape/internal/logging"
)

func (s *Session) idleLoop() {
	ticker := time.NewTicker(s.limits.IdleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.lifeCtx.Done():
			return
		case <-ticker.C:
			s.sampleUsage()
		}
	}
}

// sampleUsage compares the data stream size with the previous sample. A
// recording that never received audio is stopped at the first unchanged
// sample; otherwise a long quiet stretch is reported once.
func (s *Session) sampleUsage() {
	written := s.queue.BytesWritten()

	s.idleMu.Lock()
	if written != s.lastSample {
		s.lastSample = written
		s.unchanged = 0
		s.idleMu.Unlock()
		return
	}
	s.unchanged++
	unchanged := s.unchanged
	warn := false
	if s.receivedAudio.Load() && unchanged >= s.limits.IdleWarnSamples && !s.idleWarned {
		s.idleWarned = true
		s.idleWarnings++
		warn = true
	}
	s.idleMu.Unlock()

	if !s.receivedAudio.Load() {
		s.logger.Info("no audio received; stopping", logging.String("reason", ReasonEmpty))
		s.requestStop(StopRequest{Reason: ReasonEmpty})
		return
	}
	if warn {
		logging.WarnWithContext(s.logger, "recording has been silent", "recording_idle",
			logging.Duration("idle_duration", time.Duration(unchanged)*s.limits.IdleInterval),
			logging.Int64("bytes_written", written),
			logging.String(logging.FieldImpact, "recording continues; check that the speakers are still connected"),
		)
	}
}
