package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"firestige.xyz/tanakai/internal/core"
)

// ConsoleOptions selects the line format.
type ConsoleOptions struct {
	Format string `mapstructure:"format"` // json / text
}

// ConsoleSink writes one line per event, for debugging and offline decoding.
type ConsoleSink struct {
	out    io.Writer
	format string
}

func NewConsoleSink(opts ConsoleOptions) (*ConsoleSink, error) {
	return NewConsoleSinkTo(opts, os.Stdout)
}

// NewConsoleSinkTo is NewConsoleSink writing to out.
func NewConsoleSinkTo(opts ConsoleOptions, out io.Writer) (*ConsoleSink, error) {
	switch opts.Format {
	case "":
		opts.Format = "json"
	case "json", "text":
	default:
		return nil, fmt.Errorf("%w: invalid console format %q, must be json or text", core.ErrConfigInvalid, opts.Format)
	}
	return &ConsoleSink{out: out, format: opts.Format}, nil
}

func (s *ConsoleSink) Send(_ context.Context, ev core.PhotonEvent) error {
	var line []byte
	if s.format == "json" {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("%w: encode event: %w", core.ErrTransport, err)
		}
		line = append(data, '\n')
	} else {
		line = []byte(formatText(ev))
	}
	if _, err := s.out.Write(line); err != nil {
		return fmt.Errorf("%w: %w", core.ErrTransport, err)
	}
	return nil
}

func formatText(ev core.PhotonEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s op=%d",
		time.UnixMilli(int64(ev.Timestamp)).UTC().Format("15:04:05.000"),
		ev.Type, ev.OperationCode)
	if ev.ChannelID != nil {
		fmt.Fprintf(&b, " ch=%d", *ev.ChannelID)
	}
	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, ev.Data[k])
	}
	b.WriteByte('\n')
	return b.String()
}

func (s *ConsoleSink) Close() error {
	return nil
}
