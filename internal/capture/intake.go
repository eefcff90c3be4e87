package capture

import (
	"encoding/binary"

	"voxtape/internal/logging"
	"voxtape/internal/services"
)

// OnData implements Handler for native speakers.
func (s *Session) OnData(payload []byte, speakerID string, timestamp uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.acceptingLocked() {
		return
	}
	t, ok := s.trackLocked(speakerID, CodecNativeStereoOpus, false, Identity{})
	if !ok {
		return
	}
	s.ingestLocked(t, StripRTPExtension(payload), uint64(timestamp), s.elapsedLocked())
}

// AttachTrack allocates, or reuses on reconnect, the track for a bridged peer
// keyed by key. The identity is written immediately; no lookup happens.
func (s *Session) AttachTrack(key string, codec CodecKind, identity Identity) (TrackInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.acceptingLocked() {
		return TrackInfo{}, ErrNotRecording
	}
	s.usedBridge = true
	if t := s.tracks[key]; t != nil {
		if t.Identity != identity {
			t.Identity = identity
			_ = s.queue.SubmitUserMetadata(t.Number, identity)
			s.notifyLocked(func(o Observer) { o.TrackUpdated(t.info()) })
		}
		return t.info(), nil
	}
	t, ok := s.trackLocked(key, codec, true, identity)
	if !ok {
		return TrackInfo{}, services.Wrap(services.ErrCapacity, "capture", "attach track", "track limit reached", nil)
	}
	return t.info(), nil
}

// IngestBridged captures one frame for a bridged track. granule is both the
// local time and the annotation timestamp.
func (s *Session) IngestBridged(track uint32, payload []byte, granule uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.acceptingLocked() {
		return ErrNotRecording
	}
	t := s.byNumber[track]
	if t == nil || !t.Bridged {
		return services.Wrap(services.ErrNotFound, "capture", "ingest", "unknown bridged track", nil)
	}
	s.ingestLocked(t, payload, granule, granule)
	return nil
}

// Note appends a free-text note at the current elapsed time.
func (s *Session) Note(text string) error {
	s.mu.Lock()
	if !s.acceptingLocked() {
		s.mu.Unlock()
		return ErrNotRecording
	}
	granule := s.elapsedLocked()
	s.notes++
	s.activity.add(s.now(), "note added")
	s.mu.Unlock()
	return s.queue.SubmitNote(granule, text)
}

// trackLocked returns the track for key, creating it on first sight. Speaker
// tracks get their identity resolved in the background; bridged tracks use
// the identity supplied.
func (s *Session) trackLocked(key string, codec CodecKind, bridged bool, identity Identity) (*Track, bool) {
	if t := s.tracks[key]; t != nil {
		return t, true
	}
	if len(s.tracks) >= s.limits.MaxTracks || s.nextTrack >= NoteTrack {
		if !s.capNoted {
			s.capNoted = true
			s.logger.Debug("track limit reached; new speakers ignored", logging.Int("tracks", len(s.tracks)))
		}
		return nil, false
	}

	t := newTrack(s.nextTrack, key, codec, bridged, s.now())
	s.nextTrack++
	if s.opts.NewChecker != nil {
		t.checker = s.opts.NewChecker(codec)
	}
	s.tracks[key] = t
	s.byNumber[t.Number] = t
	_ = s.queue.SubmitTrackHeader(t.Number, codec)
	s.activity.add(s.now(), "track "+key+" added")

	if bridged {
		t.Identity = identity
		_ = s.queue.SubmitUserMetadata(t.Number, identity)
	} else {
		s.resolveIdentity(t)
	}
	info := t.info()
	s.notifyLocked(func(o Observer) { o.TrackAdded(info) })
	return t, true
}

func (s *Session) resolveIdentity(t *Track) {
	number, key := t.Number, t.Key
	s.identities.Add(1)
	go func() {
		defer s.identities.Done()
		identity := UnknownIdentity(key)
		if s.opts.Resolver != nil {
			resolved, err := s.opts.Resolver.Resolve(s.lifeCtx, key)
			if err == nil {
				identity = resolved
				if identity.ID == "" {
					identity.ID = key
				}
			} else {
				s.logger.Debug("identity lookup failed", logging.String(logging.FieldSpeaker, key), logging.Error(err))
			}
		}

		s.mu.Lock()
		t.Identity = identity
		info := t.info()
		_ = s.queue.SubmitUserMetadata(number, identity)
		s.notifyLocked(func(o Observer) { o.TrackUpdated(info) })
		s.mu.Unlock()
	}()
}

func (s *Session) ingestLocked(t *Track, payload []byte, timestamp, granule uint64) {
	s.receivedAudio.Store(true)
	p := append([]byte(nil), payload...)
	t.push(PendingPacket{Payload: p, Timestamp: timestamp, Time: granule})
	t.packets++

	if t.checker != nil && !t.corruptNoted && t.packets%s.limits.SpotCheckInterval == 0 {
		if err := t.checker.Check(p); err != nil {
			t.corruptNoted = true
			logging.WarnWithContext(s.logger, "corrupt audio payload detected", "codec_spot_check",
				logging.Track(t.Number),
				logging.String("codec", t.Codec.String()),
				logging.Error(services.Wrap(services.ErrDataCorruption, "capture", "spot check", "", err)),
				logging.String(logging.FieldImpact, "packet kept; further warnings for this track suppressed"),
			)
		}
	}

	for len(t.pending) >= s.limits.BufferDepth {
		s.flushOneLocked(t)
	}

	number, codec := t.Number, t.Codec
	s.notifyLocked(func(o Observer) { o.TrackPacket(number, codec, p) })
}

func (s *Session) flushOneLocked(t *Track) {
	pkt, seq, ok := t.pop()
	if !ok {
		return
	}
	_ = s.queue.SubmitAudio(t.Number, seq, pkt.Time, pkt.Timestamp, pkt.Payload)
}

func (s *Session) flushAllLocked(t *Track) {
	for len(t.pending) > 0 {
		s.flushOneLocked(t)
	}
}

func (s *Session) notifyLocked(fn func(Observer)) {
	for _, o := range s.observers {
		fn(o)
	}
}

// StripRTPExtension removes a one-byte RTP header extension block (profile
// 0xBEDE) from the front of payload. The 16-bit field after the marker counts
// extension elements; zero padding after the last element is skipped too.
func StripRTPExtension(payload []byte) []byte {
	if len(payload) <= 4 || payload[0] != 0xBE || payload[1] != 0xDE {
		return payload
	}
	elements := int(binary.BigEndian.Uint16(payload[2:4]))
	off := 4
	for i := 0; i < elements && off < len(payload); i++ {
		off += int(payload[off]&0x0F) + 2
	}
	for off < len(payload) && payload[off] == 0 {
		off++
	}
	if off > len(payload) {
		off = len(payload)
	}
	return payload[off:]
}
