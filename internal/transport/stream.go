package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/coder/websocket"
)

// ErrClosed is returned by send operations on a closed stream. Audio is
// perishable: callers skip the frame rather than queueing or retrying.
var ErrClosed = errors.New("transport: stream is closed")

// sendBuf is the depth of the outbound audio queue. Writes beyond it block
// the caller, which in practice never happens — payloads are flushed far
// faster than the capture rate produces them.
const sendBuf = 64

// Stream is one live bidirectional connection to the voice service,
// addressed by {serviceRoot}/{sessionID}. Outbound binary frames carry raw
// PCM; outbound text frames carry JSON requests. Inbound frames are decoded
// into [Message] values and delivered in arrival order on Messages().
//
// A Stream never reconnects: on any connection-level failure it shuts down
// and the Messages channel closes. Starting over is the caller's decision.
type Stream struct {
	conn     *websocket.Conn
	messages chan Message
	audio    chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	errMu   sync.Mutex
	termErr error

	writeMu sync.Mutex
}

// Dial opens a connection to serviceRoot/sessionID and starts the read and
// write loops.
func Dial(ctx context.Context, serviceRoot, sessionID string) (*Stream, error) {
	url := strings.TrimRight(serviceRoot, "/") + "/" + sessionID
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	// Synthesized audio payloads can be large; don't let the library's
	// default read limit truncate them.
	conn.SetReadLimit(16 << 20)

	s := &Stream{
		conn:     conn,
		messages: make(chan Message, 64),
		audio:    make(chan []byte, sendBuf),
		done:     make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop(ctx)
	go s.writeLoop(ctx)

	return s, nil
}

// SendAudio queues one flushed PCM payload for delivery as a binary frame.
// Payloads are sent strictly in the order queued. Returns [ErrClosed] when
// the connection is no longer open.
func (s *Stream) SendAudio(payload []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.audio <- payload:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// SendJSON marshals v and sends it as a text frame. Used for TTS requests
// and other control messages.
func (s *Stream) SendJSON(ctx context.Context, v any) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("transport: marshal request: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("transport: write text frame: %w", err)
	}
	return nil
}

// Messages returns the inbound message channel. It is closed when the
// connection terminates for any reason; check [Stream.Err] afterwards to
// distinguish a clean close from a transport failure.
func (s *Stream) Messages() <-chan Message { return s.messages }

// Err returns the terminal connection error, or nil for a clean shutdown.
// Only meaningful once Messages has closed.
func (s *Stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.termErr
}

// Close shuts the stream down. In-flight sends are abandoned, not flushed —
// by the time a session closes, buffered audio is stale. Safe to call more
// than once.
func (s *Stream) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.wg.Wait()
	})
	return nil
}

// writeLoop delivers queued audio payloads as binary frames.
func (s *Stream) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case payload := <-s.audio:
			s.writeMu.Lock()
			err := s.conn.Write(ctx, websocket.MessageBinary, payload)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// readLoop receives frames, decodes them, and dispatches in arrival order.
func (s *Stream) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.messages)

	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			s.recordError(err)
			return
		}

		var msg Message
		if typ == websocket.MessageBinary {
			// Binary frames are synthesized audio.
			msg = Message{Kind: KindAudio, Audio: data}
		} else {
			var perr error
			msg, perr = ParseText(data)
			if perr != nil {
				// Malformed messages never take the session down.
				slog.Debug("transport: ignoring inbound message", "err", perr)
				continue
			}
		}

		select {
		case s.messages <- msg:
		case <-s.done:
			return
		}
	}
}

// recordError stores the terminal error unless the closure was clean or
// locally initiated.
func (s *Stream) recordError(err error) {
	select {
	case <-s.done:
		return // locally closed; expected
	default:
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return
	}
	s.errMu.Lock()
	s.termErr = err
	s.errMu.Unlock()
}
