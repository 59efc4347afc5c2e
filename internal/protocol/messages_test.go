package protocol

import (
	"errors"
	"testing"
)

func TestParseMessageCreated(t *testing.T) {
	raw := []byte(`{"type":"message_created","channel_id":77,"message_id":100,"author_id":1,"author_roles":[5,6],"ts":1700000000}`)
	parsed, err := ParseBridgeMessage(raw)
	if err != nil {
		t.Fatalf("ParseBridgeMessage() error = %v", err)
	}
	msg, ok := parsed.(MessageCreated)
	if !ok {
		t.Fatalf("parsed type = %T, want MessageCreated", parsed)
	}
	if msg.ChannelID != 77 || msg.MessageID != 100 || msg.AuthorID != 1 || len(msg.AuthorRoles) != 2 {
		t.Fatalf("parsed fields = %+v", msg)
	}
}

func TestParseMessageCreatedMissingFields(t *testing.T) {
	raw := []byte(`{"type":"message_created","channel_id":77,"ts":1700000000}`)
	if _, err := ParseBridgeMessage(raw); err == nil {
		t.Fatalf("ParseBridgeMessage() accepted event without message/author ids")
	}
}

func TestParseMessageDeleted(t *testing.T) {
	raw := []byte(`{"type":"message_deleted","channel_id":77,"message_id":100}`)
	parsed, err := ParseBridgeMessage(raw)
	if err != nil {
		t.Fatalf("ParseBridgeMessage() error = %v", err)
	}
	if _, ok := parsed.(MessageDeleted); !ok {
		t.Fatalf("parsed type = %T, want MessageDeleted", parsed)
	}
}

func TestParseRoleSyncResult(t *testing.T) {
	raw := []byte(`{"type":"role_sync_result","player_id":9,"action":"add","ok":false,"detail":"missing permission"}`)
	parsed, err := ParseBridgeMessage(raw)
	if err != nil {
		t.Fatalf("ParseBridgeMessage() error = %v", err)
	}
	msg, ok := parsed.(RoleSyncResult)
	if !ok {
		t.Fatalf("parsed type = %T, want RoleSyncResult", parsed)
	}
	if msg.OK || msg.PlayerID != 9 || msg.Action != "add" {
		t.Fatalf("parsed fields = %+v", msg)
	}
}

func TestParseRejectsUnsupportedType(t *testing.T) {
	raw := []byte(`{"type":"typing_started","channel_id":77}`)
	_, err := ParseBridgeMessage(raw)
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("ParseBridgeMessage() = %v, want ErrUnsupportedType", err)
	}
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	if _, err := ParseBridgeMessage([]byte(`{"type":`)); err == nil {
		t.Fatalf("ParseBridgeMessage() accepted truncated JSON")
	}
}
