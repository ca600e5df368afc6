package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/voxwire/voxwire/internal/playback"
	"github.com/voxwire/voxwire/internal/synth"
	"github.com/voxwire/voxwire/internal/transport"
	"github.com/voxwire/voxwire/pkg/audio"
)

// maxFetchBody caps audio_url downloads.
const maxFetchBody = 32 << 20

// run is the session event loop. Every piece of per-session state is
// touched only here, so the adaptive pipeline needs no locking. loopCtx
// ends on Stop; startCtx is the caller's context, forwarded to network
// operations.
//
// When capture ends the loop does not exit immediately: the service is
// still transcribing the audio just sent, so the loop keeps draining
// inbound messages and pending timers for a grace window that re-arms on
// activity.
func (s *Session) run(loopCtx, startCtx context.Context, frames <-chan audio.Frame) {
	defer close(s.done)
	defer s.stopOnce.Do(s.teardown)

	var drain <-chan time.Time

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				// Capture ended: flush what is buffered, then drain.
				frames = nil
				s.flushPending()
				drain = time.After(s.drainGrace())
				continue
			}
			s.processFrame(loopCtx, frame)

		case msg, ok := <-s.stream.Messages():
			if !ok {
				if err := s.stream.Err(); err != nil {
					s.reportError(fmt.Errorf("session: connection lost: %w", err))
				}
				return
			}
			s.handleMessage(loopCtx, msg)
			if drain != nil {
				drain = time.After(s.drainGrace())
			}

		case <-s.final.C():
			if text, ok := s.final.Take(); ok && text != "" {
				s.emitFinal(text)
			}

		case err := <-s.audioDone:
			s.finishPlayback(loopCtx, err)
			if drain != nil {
				drain = time.After(s.drainGrace())
			}

		case payload := <-s.fetched:
			s.enqueueAudio(loopCtx, payload)
			if drain != nil {
				drain = time.After(s.drainGrace())
			}

		case <-drain:
			// A reply still playing finishes first; audioDone re-arms.
			if s.playing || len(s.audioQ) > 0 {
				drain = time.After(s.drainGrace())
				continue
			}
			return

		case <-loopCtx.Done():
			return
		case <-startCtx.Done():
			return
		}
	}
}

// drainGrace is the post-capture quiescence window. It covers the silence
// timeout so a pending partial can still be promoted to a final.
func (s *Session) drainGrace() time.Duration {
	return s.final.Timeout() + 500*time.Millisecond
}

// processFrame runs one capture frame through the detector and the send
// policy. The frame path must stay non-blocking: sends go through the
// stream's queue and drops are silent.
func (s *Session) processFrame(ctx context.Context, frame audio.Frame) {
	dec := s.detector.Process(frame)
	s.metrics.FramesProcessed.Add(ctx, 1)
	s.metrics.SessionSNR.Record(ctx, dec.SNR)
	s.quality.observe(dec, s.detector.Snapshot())

	if !s.policy.ShouldSend(dec, time.Since(s.lastSend)) {
		// Admission stopped; ship an utterance tail that has been
		// sitting in the buffer past the flush interval.
		if payload := s.buffer.FlushStale(); payload != nil {
			s.sendPayload(payload)
		}
		return
	}
	s.lastSend = time.Now()
	s.metrics.FramesSent.Add(ctx, 1)
	s.quality.addSent()

	payload := s.buffer.Add(audio.EncodePCM16(frame.Samples))
	if payload == nil {
		return
	}
	s.sendPayload(payload)
}

// flushPending ships whatever the buffer still holds.
func (s *Session) flushPending() {
	if payload := s.buffer.Flush(); payload != nil {
		s.sendPayload(payload)
	}
}

func (s *Session) sendPayload(payload []byte) {
	err := s.stream.SendAudio(payload)
	switch {
	case err == nil:
	case errors.Is(err, transport.ErrClosed):
		// Audio is perishable; a closed stream just drops the payload.
	default:
		s.reportError(fmt.Errorf("session: send audio: %w", err))
	}
}

// handleMessage dispatches one inbound service message.
func (s *Session) handleMessage(ctx context.Context, msg transport.Message) {
	s.metrics.RecordInboundMessage(ctx, msg.Kind.String())

	switch msg.Kind {
	case transport.KindPartial:
		s.final.ObservePartial(msg.Text)
		if s.cbs.OnPartial != nil {
			s.cbs.OnPartial(msg.Text)
		}

	case transport.KindFinal:
		s.final.Cancel()
		s.emitFinal(msg.Text)

	case transport.KindAudio:
		s.synth.NotifyResponse()
		s.final.Cancel()
		s.enqueueAudio(ctx, msg.Audio)

	case transport.KindAudioURL:
		s.synth.NotifyResponse()
		s.final.Cancel()
		go s.fetchAudio(ctx, msg.URL)

	case transport.KindTTSProcessing:
		s.synth.NotifyResponse()
		s.setState(playback.EventReplyReady)

	case transport.KindTTSError:
		s.synth.NotifyResponse()
		s.reportError(fmt.Errorf("session: synthesis failed upstream: %s", msg.Text))
	}
}

// emitFinal reports a completed transcript and moves the assistant to
// thinking — the reply is now in the service's hands.
func (s *Session) emitFinal(text string) {
	s.setState(playback.EventFinalTranscript)
	if s.cbs.OnFinal != nil {
		s.cbs.OnFinal(text)
	}
}

// enqueueAudio starts playback, or queues the payload when a clip is
// already playing. Playback runs off-loop; completion comes back through
// audioDone so state transitions stay on the loop.
func (s *Session) enqueueAudio(ctx context.Context, payload []byte) {
	if s.playing {
		s.audioQ = append(s.audioQ, payload)
		return
	}
	s.playing = true

	// Audio can arrive while still listening (the service skipped the
	// final-transcript message); the utterance is implicitly complete.
	if s.state == playback.StateListening {
		s.setState(playback.EventFinalTranscript)
	}
	s.setState(playback.EventReplyReady)

	go func() {
		start := time.Now()
		err := s.player.Play(ctx, payload)
		s.metrics.PlaybackDuration.Record(ctx, time.Since(start).Seconds())
		select {
		case s.audioDone <- err:
		case <-ctx.Done():
		}
	}()
}

// finishPlayback handles a completed playback request on the loop.
func (s *Session) finishPlayback(ctx context.Context, err error) {
	s.playing = false
	switch {
	case err == nil:
	case errors.Is(err, playback.ErrPlaybackTimeout):
		// The watchdog fired; treat as completed.
		slog.Debug("playback completion signal missing, watchdog resolved it")
	default:
		s.metrics.PlaybackFailures.Add(ctx, 1)
		// Playback failures never take the session down: the transcript
		// was already delivered.
		s.reportError(fmt.Errorf("session: playback: %w", err))
	}
	s.setState(playback.EventPlaybackDone)

	if len(s.audioQ) > 0 {
		next := s.audioQ[0]
		s.audioQ = s.audioQ[1:]
		s.enqueueAudio(ctx, next)
	}
}

// fetchAudio retrieves an out-of-band payload named by an audio_url
// message. It runs off-loop; the fetched payload is handed back to the
// event loop, which plays it like inline audio.
func (s *Session) fetchAudio(ctx context.Context, ref string) {
	base, err := url.Parse(s.serviceHTTPRoot())
	if err != nil {
		s.reportError(fmt.Errorf("session: bad service root: %w", err))
		return
	}
	target, err := base.Parse(ref)
	if err != nil {
		s.reportError(fmt.Errorf("session: bad audio_url %q: %w", ref, err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		s.reportError(fmt.Errorf("session: build audio fetch: %w", err))
		return
	}
	resp, err := s.httpc.Do(req)
	if err != nil {
		s.reportError(fmt.Errorf("session: fetch audio: %w", err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.reportError(fmt.Errorf("session: fetch audio: status %d", resp.StatusCode))
		return
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		s.reportError(fmt.Errorf("session: read audio body: %w", err))
		return
	}

	select {
	case s.fetched <- payload:
	case <-ctx.Done():
	}
}

// Speak synthesizes text through the transport-first chain and plays the
// result. When the transport path accepted the request the audio arrives
// later as stream messages and Speak returns immediately.
func (s *Session) Speak(ctx context.Context, text, emotion string) error {
	start := time.Now()
	res, err := s.synth.Synthesize(ctx, synth.Request{Text: text, Emotion: emotion})
	s.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if res.Streamed {
		return nil
	}
	if err := s.player.Play(ctx, res.Audio); err != nil {
		s.metrics.PlaybackFailures.Add(ctx, 1)
		return fmt.Errorf("session: %w", err)
	}
	return nil
}

func (s *Session) reportError(err error) {
	slog.Error("session error", "session", s.id, "err", err)
	if s.cbs.OnError != nil {
		s.cbs.OnError(err)
	}
}
