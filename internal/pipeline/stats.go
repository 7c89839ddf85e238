package pipeline

import (
	"sync/atomic"

	"firestige.xyz/tanakai/internal/photon"
)

// State is the pipeline lifecycle stage.
type State int32

const (
	StateIdle State = iota
	StateCapturing
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time copy of the pipeline counters.
type Stats struct {
	PacketsReceived     uint64
	FrameErrors         uint64
	NonPhoton           uint64
	DecodeErrors        uint64
	Commands            uint64
	Events              uint64
	EventsSent          uint64
	SinkErrors          uint64
	FragmentSetsEvicted uint64

	// Layer is published by the capture goroutine at every sweep and on exit.
	Layer photon.LayerStats
}

// counters are written by one goroutine each and read by Stats.
type counters struct {
	received     atomic.Uint64
	frameErrors  atomic.Uint64
	nonPhoton    atomic.Uint64
	decodeErrors atomic.Uint64
	commands     atomic.Uint64
	events       atomic.Uint64
	sent         atomic.Uint64
	sinkErrors   atomic.Uint64
	evicted      atomic.Uint64

	layer atomic.Pointer[photon.LayerStats]
}

func (c *counters) snapshot() Stats {
	s := Stats{
		PacketsReceived:     c.received.Load(),
		FrameErrors:         c.frameErrors.Load(),
		NonPhoton:           c.nonPhoton.Load(),
		DecodeErrors:        c.decodeErrors.Load(),
		Commands:            c.commands.Load(),
		Events:              c.events.Load(),
		EventsSent:          c.sent.Load(),
		SinkErrors:          c.sinkErrors.Load(),
		FragmentSetsEvicted: c.evicted.Load(),
	}
	if ls := c.layer.Load(); ls != nil {
		s.Layer = *ls
	}
	return s
}
