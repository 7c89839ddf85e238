// Package pipeline drives capture, Photon decoding and event delivery.
package pipeline

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"firestige.xyz/tanakai/internal/config"
	"firestige.xyz/tanakai/internal/core"
	"firestige.xyz/tanakai/internal/core/decoder"
	"firestige.xyz/tanakai/internal/event"
	"firestige.xyz/tanakai/internal/log"
	"firestige.xyz/tanakai/internal/metrics"
	"firestige.xyz/tanakai/internal/photon"
	"firestige.xyz/tanakai/internal/sink"
	"firestige.xyz/tanakai/internal/source"
)

const defaultChannelCapacity = 100

// PayloadSource is implemented by sources whose packets are already UDP
// payloads and need no link-layer decoding.
type PayloadSource interface {
	PayloadOnly() bool
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithPorts keeps only datagrams to or from one of ports.
func WithPorts(ports ...uint16) Option {
	return func(p *Pipeline) { p.ports = ports }
}

// WithSourceName sets the source label of the capture metrics.
func WithSourceName(name string) Option {
	return func(p *Pipeline) { p.sourceName = name }
}

// WithClock replaces the wall clock used when a packet has no timestamp.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline runs two goroutines: a capture loop that owns the source, the
// Photon layer and its reassembler, and a consumer that owns the sink. They
// share only the bounded event channel.
//
// The pipeline takes ownership of src and snk and closes both when Run returns.
type Pipeline struct {
	src       source.Source
	snk       sink.Sink
	decoder   decoder.Decoder
	layer     *photon.Layer
	extractor *event.Extractor
	events    chan core.PhotonEvent

	payloadOnly   bool
	ports         []uint16
	sourceName    string
	sweepInterval time.Duration
	now           func() time.Time

	state    atomic.Int32
	counters counters

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool

	logger log.Logger
}

// New creates an idle pipeline.
func New(cfg config.PipelineConfig, photonCfg config.PhotonConfig, src source.Source, snk sink.Sink, opts ...Option) *Pipeline {
	capacity := cfg.ChannelCapacity
	if capacity <= 0 {
		capacity = defaultChannelCapacity
	}
	sweep := photonCfg.SweepInterval
	if sweep <= 0 {
		sweep = time.Second
	}

	p := &Pipeline{
		src: src,
		snk: snk,
		layer: photon.NewLayer(photon.ReassemblyConfig{
			Timeout:          photonCfg.FragmentTimeout,
			MaxSets:          photonCfg.MaxFragmentSets,
			MaxFragmentCount: uint32(photonCfg.MaxFragmentCount),
			MaxTotalSize:     uint32(photonCfg.MaxReassembledSize),
		}),
		extractor:     event.NewExtractor(),
		events:        make(chan core.PhotonEvent, capacity),
		sweepInterval: sweep,
		now:           time.Now,
		sourceName:    "capture",
		logger:        log.GetLogger().WithField("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}

	if ps, ok := src.(PayloadSource); ok && ps.PayloadOnly() {
		p.payloadOnly = true
	} else {
		p.decoder = decoder.NewStandardDecoder(decoder.Config{LinkType: src.LinkType(), Ports: p.ports})
	}
	p.setState(StateIdle)
	return p
}

// Run captures until the source ends, fails or ctx is cancelled, then drains
// the buffered events into the sink. Source errors other than the read
// timeout end capture but are not returned; they are logged.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateCapturing)) {
		return errors.New("pipeline: already started")
	}
	metrics.PipelineState.Set(float64(StateCapturing))

	captureCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	if p.stopped {
		cancel()
	}
	p.mu.Unlock()
	defer cancel()

	// Delivery of buffered events continues after a stop request.
	sendCtx := context.WithoutCancel(ctx)

	p.logger.Info("pipeline started")

	var g errgroup.Group
	g.Go(func() error {
		defer close(p.events)
		p.capture(captureCtx)
		return nil
	})
	g.Go(func() error {
		p.consume(sendCtx)
		return nil
	})
	err := g.Wait()

	if cerr := p.snk.Close(); cerr != nil {
		p.logger.WithError(cerr).Warn("sink close failed")
	}
	p.setState(StateStopped)

	st := p.Stats()
	p.logger.WithFields(map[string]interface{}{
		"packets":     st.PacketsReceived,
		"non_photon":  st.NonPhoton,
		"commands":    st.Commands,
		"events":      st.Events,
		"sent":        st.EventsSent,
		"sink_errors": st.SinkErrors,
	}).Info("pipeline stopped")
	return err
}

// Stop requests cancellation. Buffered events are still delivered.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Pipeline) State() State {
	return State(p.state.Load())
}

func (p *Pipeline) Stats() Stats {
	return p.counters.snapshot()
}

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
	metrics.PipelineState.Set(float64(s))
}

// capture is the producer loop. The source, layer and reassembler are touched
// only from here.
func (p *Pipeline) capture(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer func() {
		if err := p.src.Close(); err != nil {
			p.logger.WithError(err).Warn("source close failed")
		}
		p.publishLayer()
	}()

	var lastSweep time.Time
	for {
		if ctx.Err() != nil {
			p.setState(StateDraining)
			return
		}

		raw, err := p.src.Next()
		if err != nil {
			if errors.Is(err, core.ErrCaptureTimeout) {
				lastSweep = p.maybeSweep(p.now(), lastSweep)
				continue
			}
			p.setState(StateDraining)
			if source.IsEnd(err) {
				p.logger.Info("capture source exhausted")
			} else {
				p.logger.WithError(err).Error("capture source failed")
			}
			return
		}

		ts := raw.Timestamp
		if ts.IsZero() {
			ts = p.now()
		}
		p.handle(raw, ts)
		lastSweep = p.maybeSweep(ts, lastSweep)
	}
}

// handle decodes one packet to completion and queues all of its events.
// Cancellation is only checked between packets.
func (p *Pipeline) handle(raw core.RawPacket, ts time.Time) {
	p.counters.received.Add(1)
	metrics.CapturePacketsTotal.WithLabelValues(p.sourceName).Inc()

	payload := raw.Data
	if !p.payloadOnly {
		dg, err := p.decoder.Decode(raw)
		if err != nil {
			p.counters.frameErrors.Add(1)
			metrics.PhotonPacketsTotal.WithLabelValues("frame_error").Inc()
			return
		}
		payload = dg.Payload
	}

	if !photon.IsPhotonPacket(payload) {
		p.counters.nonPhoton.Add(1)
		metrics.PhotonPacketsTotal.WithLabelValues("non_photon").Inc()
		return
	}

	cmds, err := p.layer.DecodeAt(payload, ts)
	if err != nil {
		p.counters.decodeErrors.Add(1)
		metrics.PhotonPacketsTotal.WithLabelValues("decode_error").Inc()
		if photon.IsProtocolError(err) {
			p.logger.WithError(err).Debug("photon decode failed")
		} else {
			p.logger.WithError(err).Warn("photon decode failed")
		}
		return
	}
	metrics.PhotonPacketsTotal.WithLabelValues("photon").Inc()
	p.counters.commands.Add(uint64(len(cmds)))
	metrics.PhotonCommandsTotal.Add(float64(len(cmds)))

	// The consumer drains until the channel is closed, so this send always
	// completes even after Stop.
	for _, ev := range p.extractor.ExtractAll(cmds, ts) {
		p.events <- ev
		p.counters.events.Add(1)
		metrics.EventsTotal.WithLabelValues(ev.Type.String()).Inc()
		metrics.QueueDepth.Set(float64(len(p.events)))
	}
}

func (p *Pipeline) maybeSweep(now, last time.Time) time.Time {
	if last.IsZero() {
		return now
	}
	if now.Sub(last) < p.sweepInterval {
		return last
	}
	if n := p.layer.Sweep(now); n > 0 {
		p.counters.evicted.Add(uint64(n))
		metrics.FragmentSetsEvictedTotal.Add(float64(n))
	}
	metrics.FragmentSetsPending.Set(float64(p.layer.PendingFragmentSets()))
	p.publishLayer()
	return now
}

func (p *Pipeline) publishLayer() {
	st := p.layer.Stats()
	p.counters.layer.Store(&st)
}

// consume drains the channel until the producer closes it. Sink failures are
// counted and logged, never fatal.
func (p *Pipeline) consume(ctx context.Context) {
	for ev := range p.events {
		start := time.Now()
		err := p.snk.Send(ctx, ev)
		elapsed := time.Since(start).Seconds()
		metrics.QueueDepth.Set(float64(len(p.events)))

		if err != nil {
			p.counters.sinkErrors.Add(1)
			metrics.SinkErrorsTotal.Inc()
			metrics.SinkSendSeconds.WithLabelValues("error").Observe(elapsed)
			p.logger.WithError(err).Warnf("deliver %s event", ev.Type)
			continue
		}
		p.counters.sent.Add(1)
		metrics.SinkSendSeconds.WithLabelValues("ok").Observe(elapsed)
	}
}
