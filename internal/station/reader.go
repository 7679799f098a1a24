package station

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os/exec"
	"strings"
	"sync/atomic"
)

const (
	defaultDecoder   = "rtl_433"
	defaultFrequency = "868.3M"
)

// Options configure the decoder subprocess and the packet filter.
type Options struct {
	Decoder      string // decoder binary, defaults to rtl_433
	DevicePath   string // passed to -c
	Frequency    string // passed to -f, defaults to 868.3M
	StationID    int
	StationModel string
}

// Reader owns one decoder subprocess and turns its JSON-line output into
// typed Readings. A Reader is single use: once the subprocess exits the
// sequence is exhausted and consuming again requires a fresh Reader.
type Reader struct {
	opts    Options
	started atomic.Bool
}

func NewReader(opts Options) *Reader {
	if opts.Decoder == "" {
		opts.Decoder = defaultDecoder
	}
	if opts.Frequency == "" {
		opts.Frequency = defaultFrequency
	}
	return &Reader{opts: opts}
}

// Readings starts the decoder subprocess and returns a pull-driven sequence
// of Readings. The only blocking point is the read of the next output line;
// the caller controls pacing by how fast it consumes. Lines that are not
// JSON packets, fail to parse, or belong to another device are discarded and
// the loop continues. The sequence ends when the subprocess exits.
//
// The subprocess is killed on every exit path, including early break by the
// consumer and context cancellation.
func (r *Reader) Readings(ctx context.Context) (iter.Seq[Reading], error) {
	if !r.started.CompareAndSwap(false, true) {
		return nil, errors.New("station: reader already consumed, a fresh reader is required")
	}

	cmd := exec.CommandContext(ctx, r.opts.Decoder,
		"-c", r.opts.DevicePath,
		"-f", r.opts.Frequency,
		"-F", "json",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("station: decoder stdout pipe: %w", err)
	}
	// Decoder diagnostics go to stderr; merge them into the same line stream.
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("station: start decoder: %w", err)
	}
	slog.Info("station: decoder started", "cmd", cmd.String(), "pid", cmd.Process.Pid)

	return func(yield func(Reading) bool) {
		defer func() {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			slog.Info("station: decoder stopped")
		}()

		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			reading, ok := r.decodeLine(strings.TrimSpace(scanner.Text()))
			if !ok {
				continue
			}
			if !yield(reading) {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			slog.Error("station: read decoder output", "error", err)
		}
	}, nil
}

// decodeLine filters and parses one line of decoder output. The second
// return value reports whether the line produced an accepted Reading.
func (r *Reader) decodeLine(line string) (Reading, bool) {
	// Non-JSON chatter from the merged stderr stream.
	if !strings.HasPrefix(line, "{") {
		return Reading{}, false
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		slog.Warn("station: discarding malformed line", "line", line, "error", err)
		packetsMalformed.Inc()
		return Reading{}, false
	}
	packetsReceived.Inc()

	// Other devices share the frequency; keep only the configured station.
	id, idOK := raw["id"].(float64)
	model, modelOK := raw["model"].(string)
	if !idOK || !modelOK || int(id) != r.opts.StationID || model != r.opts.StationModel {
		slog.Debug("station: packet from another device", "line", line)
		packetsForeign.Inc()
		return Reading{}, false
	}

	reading, err := ParseReading(raw)
	if err != nil {
		slog.Warn("station: discarding packet", "error", err, "line", line)
		packetsMalformed.Inc()
		return Reading{}, false
	}
	readingsParsed.Inc()
	return reading, true
}
