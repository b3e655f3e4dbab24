package client

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/coder/quartz"
	"golang.org/x/xerrors"

	"FOCUS_TRACKER/go-backend/internal/focus"
	"FOCUS_TRACKER/go-backend/internal/protocol"
)

// ErrBadFrame marks a frame line that could not be decoded. The source stays
// usable after it.
var ErrBadFrame = xerrors.New("bad frame")

// FrameSource yields detector frames in order. Next returns io.EOF when the
// source is exhausted.
type FrameSource interface {
	Next(ctx context.Context) (focus.Frame, error)
}

type frameLine struct {
	Timestamp *protocol.Instant `json:"timestamp"`
	Landmarks [][2]float64      `json:"landmarks"`
	Features  *focus.Features   `json:"features"`
}

// JSONLinesSource reads one frame per line. A line without landmarks or
// features is a frame in which no face was detected. Frames without a
// timestamp are stamped with the clock.
type JSONLinesSource struct {
	scanner *bufio.Scanner
	clock   quartz.Clock
	line    int
}

func NewJSONLinesSource(r io.Reader, clock quartz.Clock) *JSONLinesSource {
	if clock == nil {
		clock = quartz.NewReal()
	}
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &JSONLinesSource{scanner: s, clock: clock}
}

func (s *JSONLinesSource) Next(ctx context.Context) (focus.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return focus.Frame{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return focus.Frame{}, xerrors.Errorf("read frames: %w", err)
			}
			return focus.Frame{}, io.EOF
		}
		s.line++
		raw := s.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var fl frameLine
		if err := json.Unmarshal(raw, &fl); err != nil {
			return focus.Frame{}, xerrors.Errorf("line %d: %v: %w", s.line, err, ErrBadFrame)
		}
		frame := focus.Frame{Features: fl.Features}
		if fl.Timestamp != nil && !fl.Timestamp.IsZero() {
			frame.Timestamp = fl.Timestamp.Time
		} else {
			frame.Timestamp = s.clock.Now()
		}
		if len(fl.Landmarks) > 0 {
			frame.Landmarks = make([]focus.Point, len(fl.Landmarks))
			for i, p := range fl.Landmarks {
				frame.Landmarks[i] = focus.Point{X: p[0], Y: p[1]}
			}
		}
		return frame, nil
	}
}
