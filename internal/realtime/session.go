package realtime

import (
	"context"

	"cropwatch/internal/models"
)

// ScopeChecker reports whether the caller carried by ctx may see a device.
type ScopeChecker interface {
	DeviceVisible(ctx context.Context, devEUI string) (bool, error)
}

// Session is one client's view of the live merge: a collection of its own,
// seeded with the devices the client loaded and fed only with changes to
// devices the client can see. A Session is not safe for concurrent use.
type Session struct {
	collection *Collection
	scope      ScopeChecker
	visible    map[string]bool
}

func NewSession(seed []models.Device, scope ScopeChecker) *Session {
	s := &Session{
		collection: NewCollection(seed),
		scope:      scope,
		visible:    map[string]bool{},
	}
	for _, d := range s.collection.Snapshot() {
		s.visible[d.ID] = true
	}
	return s
}

func (s *Session) Collection() *Collection { return s.collection }

// Accept merges ch into the session when its device is in scope and returns
// the session-local change. Devices outside the seed are checked once with
// ctx; a failed check is retried on the device's next change.
func (s *Session) Accept(ctx context.Context, ch Change) (Change, bool, error) {
	id := ch.Device.ID
	visible, known := s.visible[id]
	if !known {
		ok, err := s.scope.DeviceVisible(ctx, id)
		if err != nil {
			return Change{}, false, err
		}
		s.visible[id] = ok
		visible = ok
	}
	if !visible {
		return Change{}, false, nil
	}
	return s.collection.Apply(ch.Device), true, nil
}
