package photon

import (
	"fmt"
	"time"

	"firestige.xyz/tanakai/internal/core"
	"firestige.xyz/tanakai/internal/log"
)

// ReassemblyConfig bounds the memory held by incomplete fragment sets.
// Zero fields take the defaults of DefaultReassemblyConfig.
type ReassemblyConfig struct {
	Timeout          time.Duration // idle time after which Sweep evicts a set
	MaxSets          int
	MaxFragmentCount uint32
	MaxTotalSize     uint32
}

func DefaultReassemblyConfig() ReassemblyConfig {
	return ReassemblyConfig{
		Timeout:          5 * time.Second,
		MaxSets:          1024,
		MaxFragmentCount: 4096,
		MaxTotalSize:     1 << 20,
	}
}

type fragmentSet struct {
	count       uint32
	totalSize   uint32
	received    map[uint32][]byte
	bytes       int
	lastTouched time.Time
}

// Reassembler collects the fragments of oversized reliable commands keyed by
// fragment id. It is not safe for concurrent use.
type Reassembler struct {
	cfg    ReassemblyConfig
	sets   map[uint32]*fragmentSet
	logger log.Logger
}

func NewReassembler(cfg ReassemblyConfig) *Reassembler {
	def := DefaultReassemblyConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxSets <= 0 {
		cfg.MaxSets = def.MaxSets
	}
	if cfg.MaxFragmentCount == 0 {
		cfg.MaxFragmentCount = def.MaxFragmentCount
	}
	if cfg.MaxTotalSize == 0 {
		cfg.MaxTotalSize = def.MaxTotalSize
	}
	return &Reassembler{
		cfg:    cfg,
		sets:   make(map[uint32]*fragmentSet),
		logger: log.GetLogger().WithField("component", "reassembler"),
	}
}

// AddFragment stores fragment number of set id. The first fragment seen for an
// id fixes the set's count and total size; later disagreement is logged and
// ignored. A repeated fragment number keeps the first payload.
func (r *Reassembler) AddFragment(id, count, number, totalSize uint32, data []byte, now time.Time) error {
	set, ok := r.sets[id]
	if !ok {
		switch {
		case count == 0:
			return fmt.Errorf("%w: set %d declares zero fragments", core.ErrFragmentInvalid, id)
		case count > r.cfg.MaxFragmentCount:
			return fmt.Errorf("%w: set %d declares %d fragments (max %d)", core.ErrFragmentInvalid, id, count, r.cfg.MaxFragmentCount)
		case totalSize > r.cfg.MaxTotalSize:
			return fmt.Errorf("%w: set %d declares %d bytes (max %d)", core.ErrFragmentInvalid, id, totalSize, r.cfg.MaxTotalSize)
		}
		if len(r.sets) >= r.cfg.MaxSets {
			r.evictOldest()
		}
		set = &fragmentSet{
			count:       count,
			totalSize:   totalSize,
			received:    make(map[uint32][]byte, min(count, 64)),
			lastTouched: now,
		}
		r.sets[id] = set
	} else if set.count != count || set.totalSize != totalSize {
		r.logger.WithFields(map[string]interface{}{
			"fragment_id": id,
			"count":       set.count,
			"total_size":  set.totalSize,
			"got_count":   count,
			"got_size":    totalSize,
		}).Warn("fragment metadata mismatch, keeping first-seen values")
	}

	if number >= set.count {
		return fmt.Errorf("%w: set %d fragment %d out of range [0,%d)", core.ErrFragmentInvalid, id, number, set.count)
	}
	set.lastTouched = now

	if _, dup := set.received[number]; dup {
		r.logger.Debugf("duplicate fragment %d of set %d ignored", number, id)
		return nil
	}
	if set.bytes+len(data) > int(r.cfg.MaxTotalSize) {
		delete(r.sets, id)
		return fmt.Errorf("%w: set %d exceeds %d bytes, dropped", core.ErrFragmentInvalid, id, r.cfg.MaxTotalSize)
	}

	part := make([]byte, len(data))
	copy(part, data)
	set.received[number] = part
	set.bytes += len(part)
	return nil
}

// TryComplete returns the reassembled command once every fragment number in
// [0,count) is present, and forgets the set.
func (r *Reassembler) TryComplete(id uint32) ([]byte, bool) {
	set, ok := r.sets[id]
	if !ok || uint32(len(set.received)) < set.count {
		return nil, false
	}

	buf := make([]byte, 0, set.totalSize)
	for i := uint32(0); i < set.count; i++ {
		part, ok := set.received[i]
		if !ok {
			r.logger.Warnf("fragment set %d reports %d parts but number %d is missing", id, len(set.received), i)
			return nil, false
		}
		buf = append(buf, part...)
	}
	delete(r.sets, id)

	if len(buf) != int(set.totalSize) {
		r.logger.WithField("fragment_id", id).
			Warnf("reassembled %d bytes, header declared %d", len(buf), set.totalSize)
	}
	return buf, true
}

// Sweep evicts sets idle for longer than the configured timeout and returns
// how many were dropped.
func (r *Reassembler) Sweep(now time.Time) int {
	evicted := 0
	for id, set := range r.sets {
		if now.Sub(set.lastTouched) > r.cfg.Timeout {
			delete(r.sets, id)
			evicted++
		}
	}
	if evicted > 0 {
		r.logger.Debugf("evicted %d stale fragment sets", evicted)
	}
	return evicted
}

// Len returns the number of incomplete sets held.
func (r *Reassembler) Len() int {
	return len(r.sets)
}

func (r *Reassembler) evictOldest() {
	var (
		oldestID uint32
		oldest   *fragmentSet
	)
	for id, set := range r.sets {
		if oldest == nil || set.lastTouched.Before(oldest.lastTouched) {
			oldestID, oldest = id, set
		}
	}
	if oldest != nil {
		delete(r.sets, oldestID)
		r.logger.Debugf("fragment set table full, evicted set %d", oldestID)
	}
}
