package transcribe

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"
)

// Sentinel errors for the HTTP layer to map onto result kinds.
var (
	// ErrUnavailable means the transcoder could not be reached.
	ErrUnavailable = errors.New("transcoder unavailable")
	// ErrTimeout means the transcoder stalled past the read deadline.
	ErrTimeout = errors.New("transcoder timed out")
)

// chunkSize bounds each streamed audio frame (1 second of
// 16 kHz / 16-bit / mono audio).
const chunkSize = 32000

// event is the wire frame: a JSON header line, then payloadLength raw
// bytes. The transcoder answers with events of the same shape.
type event struct {
	Type          string         `json:"type"`
	Data          map[string]any `json:"data,omitempty"`
	PayloadLength int            `json:"payload_length,omitempty"`
}

// Client streams PCM audio to the external transcoder over TCP and
// waits for a transcript event.
type Client struct {
	addr         string
	dialTimeout  time.Duration
	readDeadline time.Duration
	logger       *slog.Logger
}

// NewClient creates a transcoder client. addr is host:port.
func NewClient(addr string, readDeadline time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if readDeadline <= 0 {
		readDeadline = 10 * time.Second
	}
	return &Client{
		addr:         addr,
		dialTimeout:  5 * time.Second,
		readDeadline: readDeadline,
		logger:       logger,
	}
}

// Result carries the transcript. Text may legitimately be empty; the
// warning then explains why the caller still sees success.
type Result struct {
	Text    string `json:"text"`
	Warning string `json:"warning,omitempty"`
}

// Transcribe streams samples to the transcoder and returns the
// recognized text. The protocol is: transcribe preamble with language
// hint, audio-start with the PCM parameters, bounded audio-chunk
// frames, audio-stop, then read events until a transcript arrives.
func (c *Client) Transcribe(ctx context.Context, info PCMInfo, samples []byte, language string) (*Result, error) {
	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		c.logger.Warn("transcoder dial failed", "addr", c.addr, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(c.readDeadline))
	}

	w := bufio.NewWriter(conn)

	if err := writeEvent(w, event{
		Type: "transcribe",
		Data: map[string]any{"language": language},
	}, nil); err != nil {
		return nil, wrapConnErr(err)
	}

	audioParams := map[string]any{
		"rate":     info.SampleRate,
		"width":    info.SampleWidth(),
		"channels": info.Channels,
	}
	if err := writeEvent(w, event{Type: "audio-start", Data: audioParams}, nil); err != nil {
		return nil, wrapConnErr(err)
	}

	for start := 0; start < len(samples); start += chunkSize {
		end := start + chunkSize
		if end > len(samples) {
			end = len(samples)
		}
		chunk := samples[start:end]
		if err := writeEvent(w, event{
			Type:          "audio-chunk",
			Data:          audioParams,
			PayloadLength: len(chunk),
		}, chunk); err != nil {
			return nil, wrapConnErr(err)
		}
	}

	if err := writeEvent(w, event{Type: "audio-stop"}, nil); err != nil {
		return nil, wrapConnErr(err)
	}
	if err := w.Flush(); err != nil {
		return nil, wrapConnErr(err)
	}

	return readTranscript(bufio.NewReader(conn))
}

// writeEvent emits one header line plus its payload.
func writeEvent(w *bufio.Writer, ev event, payload []byte) error {
	header, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := w.Write(append(header, '\n')); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// readTranscript reads events until a transcript arrives. An empty
// transcript is success with a warning — never a synthesized result.
func readTranscript(r *bufio.Reader) (*Result, error) {
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			return nil, wrapConnErr(err)
		}

		var ev event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("malformed event header: %w", err)
		}

		// Skip any payload attached to events we don't consume.
		if ev.PayloadLength > 0 {
			if _, err := io.CopyN(io.Discard, r, int64(ev.PayloadLength)); err != nil {
				return nil, wrapConnErr(err)
			}
		}

		if ev.Type != "transcript" {
			continue
		}

		text, _ := ev.Data["text"].(string)
		result := &Result{Text: text}
		if text == "" {
			result.Warning = "transcoder returned an empty transcript"
		}
		return result, nil
	}
}

func wrapConnErr(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: connection closed before transcript", ErrUnavailable)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
