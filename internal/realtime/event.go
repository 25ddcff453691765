package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cropwatch/internal/models"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
)

// ErrUnsupportedEvent is returned for change types other than insert and update.
var ErrUnsupportedEvent = errors.New("realtime: unsupported event type")

// Event is one device row change.
type Event struct {
	Type EventType
	Row  models.DeviceRow
}

// Handler receives events one at a time.
type Handler func(Event)

// Source delivers device change events until the returned unsubscribe is
// called or ctx ends.
type Source interface {
	Subscribe(ctx context.Context, h Handler) (unsubscribe func(), err error)
}

type changePayload struct {
	Type   string         `json:"type"`
	Record map[string]any `json:"record"`
}

// DecodeEvent parses the {"type": ..., "record": {...}} change payload shared
// by the MQTT and Postgres sources.
func DecodeEvent(data []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var p changePayload
	if err := dec.Decode(&p); err != nil {
		return Event{}, fmt.Errorf("failed to decode change payload: %w", err)
	}

	t := EventType(strings.ToUpper(p.Type))
	if t != EventInsert && t != EventUpdate {
		return Event{}, fmt.Errorf("%w: %q", ErrUnsupportedEvent, p.Type)
	}
	if p.Record == nil {
		return Event{}, errors.New("change payload has no record")
	}

	row := models.DeviceRowFromMap(p.Record)
	if row.DevEUI == "" {
		return Event{}, errors.New("change record has no dev_eui")
	}
	return Event{Type: t, Row: row}, nil
}

// EncodeEvent is the inverse of DecodeEvent.
func EncodeEvent(t EventType, record map[string]any) ([]byte, error) {
	return json.Marshal(changePayload{Type: string(t), Record: record})
}
