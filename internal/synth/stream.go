package synth

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrNoReaction is returned by the stream path when the service stayed
// silent for the whole bounded wait across every probed request shape.
var ErrNoReaction = errors.New("synth: no service reaction to stream request")

// requestShape builds one wire form of a TTS request. Backends in the
// wild disagree on the field layout, so the stream path probes the known
// shapes in order of prevalence until one draws a reaction.
type requestShape func(req Request) any

var requestShapes = []requestShape{
	func(req Request) any {
		return map[string]string{"type": "tts_request", "text": req.Text, "emotion": req.Emotion}
	},
	func(req Request) any {
		return map[string]string{"action": "tts", "message": req.Text, "emotion": req.Emotion}
	},
	func(req Request) any {
		return map[string]string{"type": "tts", "text": req.Text}
	},
}

// streamPath sends TTS requests over the live connection. Success here
// only means the service reacted; the audio itself arrives later as
// inbound stream messages.
type streamPath struct {
	sender StreamSender
	wait   time.Duration
	ack    <-chan struct{}
}

func (p *streamPath) request(ctx context.Context, req Request) (Result, error) {
	// A stale ack from a previous request must not satisfy this one.
	select {
	case <-p.ack:
	default:
	}

	perShape := p.wait / time.Duration(len(requestShapes))
	for i, shape := range requestShapes {
		if err := p.sender.SendJSON(ctx, shape(req)); err != nil {
			return Result{}, err
		}
		select {
		case <-p.ack:
			if i > 0 {
				slog.Debug("tts stream request answered on alternate shape", "shape", i)
			}
			return Result{Streamed: true}, nil
		case <-time.After(perShape):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	return Result{}, ErrNoReaction
}
