package realtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropwatch/internal/models"
	"cropwatch/internal/realtime"
)

type fakeScope struct {
	visible map[string]bool
	calls   map[string]int
	err     error
}

func (f *fakeScope) DeviceVisible(_ context.Context, devEUI string) (bool, error) {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[devEUI]++
	if f.err != nil {
		return false, f.err
	}
	return f.visible[devEUI], nil
}

func TestSession_SeededDevicesNeedNoCheck(t *testing.T) {
	scope := &fakeScope{}
	s := realtime.NewSession([]models.Device{{ID: "a"}, {ID: "b"}}, scope)

	ch, ok, err := s.Accept(context.Background(), realtime.Change{Device: models.Device{ID: "b", Humidity: 50}, Index: 7})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, ch.Index, "index is local to the session")
	assert.False(t, ch.Inserted)
	assert.Empty(t, scope.calls)
}

func TestSession_FiltersDevicesOutOfScope(t *testing.T) {
	scope := &fakeScope{visible: map[string]bool{"mine": true}}
	s := realtime.NewSession([]models.Device{{ID: "a"}}, scope)
	ctx := context.Background()

	_, ok, err := s.Accept(ctx, realtime.Change{Device: models.Device{ID: "other-tenant"}})
	require.NoError(t, err)
	assert.False(t, ok)

	ch, ok, err := s.Accept(ctx, realtime.Change{Device: models.Device{ID: "mine"}})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, ch.Inserted)

	_, _, _ = s.Accept(ctx, realtime.Change{Device: models.Device{ID: "other-tenant"}})
	assert.Equal(t, 1, scope.calls["other-tenant"], "visibility is remembered")
	assert.Equal(t, []string{"mine", "a"}, ids(s.Collection().Snapshot()))
}

func TestSession_CheckFailureIsRetried(t *testing.T) {
	scope := &fakeScope{err: errors.New("db down")}
	s := realtime.NewSession(nil, scope)

	_, ok, err := s.Accept(context.Background(), realtime.Change{Device: models.Device{ID: "x"}})
	require.Error(t, err)
	assert.False(t, ok)

	scope.err = nil
	scope.visible = map[string]bool{"x": true}
	_, ok, err = s.Accept(context.Background(), realtime.Change{Device: models.Device{ID: "x"}})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, scope.calls["x"])
}

func ids(devices []models.Device) []string {
	out := make([]string, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.ID)
	}
	return out
}
