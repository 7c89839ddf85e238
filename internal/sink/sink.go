// Package sink delivers decoded events to collectors.
package sink

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/tanakai/internal/config"
	"firestige.xyz/tanakai/internal/core"
)

// Sink receives events one at a time from the pipeline's consumer goroutine.
// Send failures are reported as errors wrapping core.ErrTransport.
type Sink interface {
	Send(ctx context.Context, ev core.PhotonEvent) error
	Close() error
}

const (
	TypeHTTP    = "http"
	TypeKafka   = "kafka"
	TypeConsole = "console"
)

// New builds the sink named by cfg.Type from cfg.Options.
func New(cfg config.SinkConfig) (Sink, error) {
	switch cfg.Type {
	case TypeHTTP:
		opts := DefaultHTTPOptions()
		if err := decodeOptions(cfg.Options, &opts); err != nil {
			return nil, err
		}
		return NewHTTPSink(opts)
	case TypeKafka:
		opts := DefaultKafkaOptions()
		if err := decodeOptions(cfg.Options, &opts); err != nil {
			return nil, err
		}
		return NewKafkaSink(opts)
	case TypeConsole:
		opts := ConsoleOptions{Format: "json"}
		if err := decodeOptions(cfg.Options, &opts); err != nil {
			return nil, err
		}
		return NewConsoleSink(opts)
	default:
		return nil, fmt.Errorf("%w: unknown sink type %q", core.ErrConfigInvalid, cfg.Type)
	}
}

// decodeOptions decodes a loosely typed option map over the defaults in out.
func decodeOptions(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("%w: sink options: %w", core.ErrConfigInvalid, err)
	}
	return nil
}
