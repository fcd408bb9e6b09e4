// Package wsserver exposes the decoder's streaming Feed/Finish API over a
// WebSocket connection: a client opens a socket, sends binary-encoded
// probability frames, and the server streams back a partial top-1
// hypothesis after each frame plus a final rescored result on close.
package wsserver

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/beamctc/internal/observe"
	"github.com/MrWong99/beamctc/pkg/alphabet"
	"github.com/MrWong99/beamctc/pkg/decoder"
	"github.com/MrWong99/beamctc/pkg/diagnostics"
	"github.com/MrWong99/beamctc/pkg/trie"
)

// decodeConfig bundles the decoder dependencies a [Server] swaps atomically
// on a hot reload, so an in-flight connection always sees a consistent
// triple rather than a half-updated alphabet paired with a stale lexicon.
type decodeConfig struct {
	alphabet *alphabet.Alphabet
	opts     decoder.Options
	dict     trie.Matcher
	// diag suggests in-vocabulary corrections for words the dictionary
	// matcher rejected during the decode. Nil when no lexicon is attached.
	diag *diagnostics.Suggester
}

// frameHeaderSize is the byte length of the fixed-size header prefixing
// every binary frame message: a uint32 row count followed by a uint32
// column count, both little-endian, before the raw float64 payload.
const frameHeaderSize = 8

// controlMessage is the shape of the JSON control frame a client may send
// instead of a binary probability frame to end the stream early.
type controlMessage struct {
	Type string `json:"type"`
}

// partialResult is streamed back to the client after every binary frame.
type partialResult struct {
	Type   string         `json:"type"`
	Output decoder.Output `json:"output,omitempty"`
}

// suggestion is an in-vocabulary correction proposed for a word the
// dictionary matcher rejected somewhere during the decode.
type suggestion struct {
	Word       string  `json:"word"`
	Suggestion string  `json:"suggestion"`
	Confidence float64 `json:"confidence"`
}

// finalResult is sent once, after the client closes its write side or
// sends a {"type":"finish"} control message.
type finalResult struct {
	Type        string           `json:"type"`
	Outputs     []decoder.Output `json:"outputs"`
	Suggestions []suggestion     `json:"suggestions,omitempty"`
}

// Server accepts WebSocket connections and drives a [decoder.DecoderState]
// per connection.
type Server struct {
	cfg     atomic.Pointer[decodeConfig]
	metrics *observe.Metrics

	// AcceptOptions are passed through to [websocket.Accept]. Tests
	// typically set InsecureSkipVerify.
	AcceptOptions *websocket.AcceptOptions
}

// New creates a [Server] that decodes incoming streams using the given
// alphabet, decode options, and optional lexicon matcher (nil for an
// unconstrained decode). diag may be nil to disable the post-decode
// suggestion feature.
func New(a *alphabet.Alphabet, opts decoder.Options, dict trie.Matcher, diag *diagnostics.Suggester, m *observe.Metrics) *Server {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	opts.Metrics = m
	s := &Server{metrics: m}
	s.cfg.Store(&decodeConfig{alphabet: a, opts: opts, dict: dict, diag: diag})
	return s
}

// SetConfig swaps the decoder dependencies used by connections accepted
// after this call returns. Connections already streaming keep using the
// [decoder.DecoderState] they were constructed with. Callers typically
// invoke this from an [internal/config.Watcher] callback after a
// successful hot reload.
func (s *Server) SetConfig(a *alphabet.Alphabet, opts decoder.Options, dict trie.Matcher, diag *diagnostics.Suggester) {
	opts.Metrics = s.metrics
	s.cfg.Store(&decodeConfig{alphabet: a, opts: opts, dict: dict, diag: diag})
}

// ServeHTTP upgrades the connection and drives the decode loop until the
// client disconnects or requests a finish.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observe.Logger(ctx)

	c, err := websocket.Accept(w, r, s.AcceptOptions)
	if err != nil {
		logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer c.CloseNow()

	s.metrics.ActiveDecoders.Add(ctx, 1)
	defer s.metrics.ActiveDecoders.Add(ctx, -1)

	cfg := s.cfg.Load()
	start := time.Now()
	state := decoder.New(cfg.alphabet, cfg.opts.BeamSize, cfg.opts.CutoffProb, cfg.opts.CutoffTopN, cfg.opts.Scorer, cfg.dict, cfg.opts.Metrics)

	if err := s.loop(ctx, c, state); err != nil {
		if !isNormalClose(err) {
			logger.Warn("stream ended with error", "error", err)
			c.Close(websocket.StatusInternalError, err.Error())
			return
		}
	}

	outputs := state.Finish(cfg.opts.TopPaths)
	s.metrics.DecodeDuration.Record(ctx, time.Since(start).Seconds())

	var suggestions []suggestion
	if cfg.diag != nil {
		for _, w := range state.RejectedWords() {
			sug, ok := cfg.diag.Suggest(w)
			if !ok {
				continue
			}
			suggestions = append(suggestions, suggestion{
				Word:       w,
				Suggestion: sug.Word,
				Confidence: sug.Confidence,
			})
		}
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := writeJSON(writeCtx, c, finalResult{Type: "final", Outputs: outputs, Suggestions: suggestions}); err != nil {
		logger.Warn("failed to write final result", "error", err)
		return
	}
	c.Close(websocket.StatusNormalClosure, "")
}

// loop reads frames off the socket until the client closes the connection
// or sends a finish control message, feeding each frame to state and
// streaming back a partial hypothesis after every one.
func (s *Server) loop(ctx context.Context, c *websocket.Conn, state *decoder.DecoderState) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			if isNormalClose(err) {
				return nil
			}
			return err
		}

		switch typ {
		case websocket.MessageBinary:
			probs, err := decodeFrame(data)
			if err != nil {
				return fmt.Errorf("wsserver: decoding frame: %w", err)
			}
			frameStart := time.Now()
			state.Feed(probs)
			s.metrics.FrameDuration.Record(ctx, time.Since(frameStart).Seconds())
			s.metrics.RecordFrame(ctx, "ok")

			out := state.Finish(1)
			pr := partialResult{Type: "partial"}
			if len(out) > 0 {
				pr.Output = out[0]
			}
			if err := writeJSON(ctx, c, pr); err != nil {
				return err
			}

		case websocket.MessageText:
			var ctrl controlMessage
			if err := json.Unmarshal(data, &ctrl); err != nil {
				return fmt.Errorf("wsserver: decoding control message: %w", err)
			}
			if ctrl.Type == "finish" {
				return nil
			}

		default:
			return fmt.Errorf("wsserver: unexpected message type %v", typ)
		}
	}
}

// writeJSON marshals v and writes it as a text message.
func writeJSON(ctx context.Context, c *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Write(ctx, websocket.MessageText, data)
}

// decodeFrame parses the fixed binary layout: uint32 rows, uint32 cols,
// then rows*cols little-endian float64 values in row-major order.
func decodeFrame(data []byte) ([][]float64, error) {
	if len(data) < frameHeaderSize {
		return nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}
	rows := binary.LittleEndian.Uint32(data[0:4])
	cols := binary.LittleEndian.Uint32(data[4:8])
	want := frameHeaderSize + int(rows)*int(cols)*8
	if len(data) != want {
		return nil, fmt.Errorf("frame payload size mismatch: got %d bytes, want %d for %dx%d", len(data), want, rows, cols)
	}

	probs := make([][]float64, rows)
	off := frameHeaderSize
	for i := range probs {
		row := make([]float64, cols)
		for j := range row {
			bits := binary.LittleEndian.Uint64(data[off : off+8])
			row[j] = math.Float64frombits(bits)
			off += 8
		}
		probs[i] = row
	}
	return probs, nil
}

func isNormalClose(err error) bool {
	var closeErr websocket.CloseError
	return errors.As(err, &closeErr) && closeErr.Code == websocket.StatusNormalClosure
}
