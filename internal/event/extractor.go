// Package event maps decoded Photon commands to domain events.
package event

import (
	"time"

	"firestige.xyz/tanakai/internal/core"
	"firestige.xyz/tanakai/internal/log"
	"firestige.xyz/tanakai/internal/photon"
)

// Parameter keys read by the handlers.
const (
	keyPlayerID   uint8 = 0
	keyPlayerName uint8 = 1
	keyPosX       uint8 = 2
	keyPosY       uint8 = 3

	keyItemID uint8 = 1
	keyPrice  uint8 = 2
	keyAmount uint8 = 3

	keyGuildID   uint8 = 1
	keyGuildName uint8 = 2
)

// handler fills ev.Data from cmd and reports whether every required field was present.
type handler func(cmd photon.Command, ev *core.PhotonEvent) bool

type mapping struct {
	typ     core.EventType
	action  string
	handler handler
}

// table is the closed opcode mapping. Opcodes not listed yield no event.
// Both player movement opcodes report PlayerAppear.
var table = map[uint8]mapping{
	1:  {typ: core.EventPlayerAppear, handler: player},
	2:  {typ: core.EventPlayerAppear, handler: player},
	10: {typ: core.EventMarketUpdate, action: "sell_order", handler: market},
	11: {typ: core.EventMarketUpdate, action: "buy_order", handler: market},
	12: {typ: core.EventMarketUpdate, action: "cancel_order", handler: market},
	20: {typ: core.EventGuildUpdate, action: "join", handler: guild},
	21: {typ: core.EventGuildUpdate, action: "leave", handler: guild},
}

// Extractor turns commands into events. It holds no per-command state.
type Extractor struct {
	logger log.Logger
}

func NewExtractor() *Extractor {
	return &Extractor{logger: log.GetLogger().WithField("component", "extractor")}
}

// Extract maps one command. A command whose opcode is unmapped, or that lacks
// a required parameter, produces no event.
func (e *Extractor) Extract(cmd photon.Command, ts time.Time) (core.PhotonEvent, bool) {
	m, ok := table[cmd.OperationCode]
	if !ok {
		if e.logger.IsDebugEnabled() {
			e.logger.Debugf("unmapped opcode %d, parameter keys %v", cmd.OperationCode, cmd.Parameters.Keys())
		}
		return core.PhotonEvent{}, false
	}

	ev := core.NewPhotonEvent(m.typ, cmd.OperationCode, cmd.Channel(), ts)
	if m.action != "" {
		ev.Data["action"] = m.action
	}
	if !m.handler(cmd, &ev) {
		e.logger.Debugf("opcode %d missing required parameters, keys %v", cmd.OperationCode, cmd.Parameters.Keys())
		return core.PhotonEvent{}, false
	}
	return ev, true
}

// ExtractAll maps cmds in order, skipping those that produce no event.
func (e *Extractor) ExtractAll(cmds []photon.Command, ts time.Time) []core.PhotonEvent {
	events := make([]core.PhotonEvent, 0, len(cmds))
	for _, cmd := range cmds {
		if ev, ok := e.Extract(cmd, ts); ok {
			events = append(events, ev)
		}
	}
	return events
}

func player(cmd photon.Command, ev *core.PhotonEvent) bool {
	name, ok := cmd.Parameters.String(keyPlayerName)
	if !ok {
		return false
	}
	ev.Data["player_name"] = name
	if id, ok := cmd.Parameters.Int(keyPlayerID); ok {
		ev.Data["player_id"] = id
	}
	x, okX := cmd.Parameters.Int(keyPosX)
	y, okY := cmd.Parameters.Int(keyPosY)
	if okX && okY {
		ev.Data["pos_x"] = x
		ev.Data["pos_y"] = y
	}
	return true
}

func market(cmd photon.Command, ev *core.PhotonEvent) bool {
	item, ok := cmd.Parameters.Int(keyItemID)
	if !ok {
		return false
	}
	ev.Data["item_id"] = item
	if price, ok := cmd.Parameters.Int(keyPrice); ok {
		ev.Data["price"] = price
	}
	if amount, ok := cmd.Parameters.Int(keyAmount); ok {
		ev.Data["amount"] = amount
	}
	return true
}

func guild(cmd photon.Command, ev *core.PhotonEvent) bool {
	id, ok := cmd.Parameters.String(keyGuildID)
	if !ok {
		return false
	}
	ev.Data["guild_id"] = id
	if name, ok := cmd.Parameters.String(keyGuildName); ok {
		ev.Data["guild_name"] = name
	}
	return true
}
