package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType classifies a decoded Photon event.
type EventType uint8

const (
	EventUnknown EventType = iota
	EventPlayerAppear
	EventPlayerDisappear
	EventMarketUpdate
	EventGuildUpdate
	EventCombat
)

var eventTypeNames = map[EventType]string{
	EventUnknown:         "Unknown",
	EventPlayerAppear:    "PlayerAppear",
	EventPlayerDisappear: "PlayerDisappear",
	EventMarketUpdate:    "MarketUpdate",
	EventGuildUpdate:     "GuildUpdate",
	EventCombat:          "CombatEvent",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EventType(%d)", uint8(t))
}

// MarshalJSON encodes the type by name so collectors never see the numeric value.
func (t EventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts the names produced by MarshalJSON.
func (t *EventType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for k, v := range eventTypeNames {
		if v == name {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", name)
}

// PhotonEvent is the domain event handed to sinks. It is built once by the
// extractor and passed by value afterwards.
type PhotonEvent struct {
	Type          EventType      `json:"event_type"`
	Timestamp     uint64         `json:"timestamp"` // milliseconds since epoch
	OperationCode uint8          `json:"operation_code"`
	ChannelID     *uint8         `json:"channel_id"`
	Data          map[string]any `json:"data"`
}

// NewPhotonEvent creates an event stamped with the capture time ts.
func NewPhotonEvent(t EventType, opCode uint8, channelID *uint8, ts time.Time) PhotonEvent {
	return PhotonEvent{
		Type:          t,
		Timestamp:     uint64(ts.UnixMilli()),
		OperationCode: opCode,
		ChannelID:     channelID,
		Data:          make(map[string]any),
	}
}
