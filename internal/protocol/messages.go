package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants on the bridge socket.
type MessageType string

const (
	// Inbound, platform bridge -> engine.
	TypeMessageCreated MessageType = "message_created"
	TypeMessageDeleted MessageType = "message_deleted"
	TypeRoleSyncResult MessageType = "role_sync_result"

	// Outbound, engine -> platform bridge.
	TypeRoleSync   MessageType = "role_sync"
	TypeEventAck   MessageType = "event_ack"
	TypeErrorEvent MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// MessageCreated carries one new chat message observed by the bridge.
type MessageCreated struct {
	Type        MessageType `json:"type"`
	ChannelID   uint64      `json:"channel_id"`
	MessageID   uint64      `json:"message_id"`
	AuthorID    uint64      `json:"author_id"`
	AuthorRoles []uint64    `json:"author_roles,omitempty"`
	Bot         bool        `json:"bot,omitempty"`
	TS          int64       `json:"ts"`
}

// MessageDeleted signals that the platform removed a message upstream.
type MessageDeleted struct {
	Type      MessageType `json:"type"`
	ChannelID uint64      `json:"channel_id"`
	MessageID uint64      `json:"message_id"`
}

// RoleSyncResult reports whether the bridge applied a role_sync intent.
type RoleSyncResult struct {
	Type     MessageType `json:"type"`
	PlayerID uint64      `json:"player_id"`
	Action   string      `json:"action"`
	OK       bool        `json:"ok"`
	Detail   string      `json:"detail,omitempty"`
}

// RoleSync asks the bridge to add or remove the infected role.
type RoleSync struct {
	Type     MessageType `json:"type"`
	PlayerID uint64      `json:"player_id"`
	Action   string      `json:"action"`
}

// EventAck confirms an inbound event was processed, with the transition (if
// any) the engine decided.
type EventAck struct {
	Type       MessageType `json:"type"`
	MessageID  uint64      `json:"message_id"`
	Transition string      `json:"transition,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	MessageID uint64      `json:"message_id,omitempty"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ParseBridgeMessage sniffs the envelope type and decodes the full payload,
// validating mandatory fields per variant.
func ParseBridgeMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeMessageCreated:
		var msg MessageCreated
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ChannelID == 0 || msg.MessageID == 0 || msg.AuthorID == 0 {
			return nil, errors.New("invalid message_created")
		}
		return msg, nil
	case TypeMessageDeleted:
		var msg MessageDeleted
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ChannelID == 0 || msg.MessageID == 0 {
			return nil, errors.New("invalid message_deleted")
		}
		return msg, nil
	case TypeRoleSyncResult:
		var msg RoleSyncResult
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.PlayerID == 0 || msg.Action == "" {
			return nil, errors.New("invalid role_sync_result")
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, env.Type)
	}
}
