package realtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropwatch/internal/models"
	"cropwatch/internal/realtime"
	"cropwatch/internal/telemetry"
)

func ptr[T any](v T) *T { return &v }

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeResolver struct {
	types     map[int64]*models.DeviceType
	locations map[int64]*models.LocationRow
	fail      bool
}

func (f *fakeResolver) DeviceType(_ context.Context, id int64) (*models.DeviceType, error) {
	if f.fail {
		return nil, errors.New("boom")
	}
	return f.types[id], nil
}

func (f *fakeResolver) Location(_ context.Context, id int64) (*models.LocationRow, error) {
	if f.fail {
		return nil, errors.New("boom")
	}
	return f.locations[id], nil
}

// chanSource delivers events pushed through Emit.
type chanSource struct {
	mu           sync.Mutex
	handler      realtime.Handler
	unsubscribed bool
}

func (s *chanSource) Subscribe(_ context.Context, h realtime.Handler) (func(), error) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.unsubscribed = true
		s.mu.Unlock()
	}, nil
}

func (s *chanSource) Emit(ev realtime.Event) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	h(ev)
}

func newMerger(c *realtime.Collection, r realtime.Resolver) *realtime.Merger {
	n := &telemetry.Normalizer{Now: func() time.Time { return now }}
	return realtime.NewMerger(c, r, n, realtime.WithBufferSize(8))
}

func event(t realtime.EventType, fields map[string]any) realtime.Event {
	return realtime.Event{Type: t, Row: models.DeviceRowFromMap(fields)}
}

func TestCollection_ApplyUpdatesInPlaceAndPrependsNew(t *testing.T) {
	c := realtime.NewCollection([]models.Device{{ID: "a"}, {ID: "b"}, {ID: "a"}})
	require.Equal(t, 2, c.Len())

	ch := c.Apply(models.Device{ID: "b", Name: "renamed"})
	assert.False(t, ch.Inserted)
	assert.Equal(t, 1, ch.Index)

	ch = c.Apply(models.Device{ID: "c"})
	assert.True(t, ch.Inserted)
	assert.Equal(t, 0, ch.Index)

	snap := c.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{snap[0].ID, snap[1].ID, snap[2].ID})
	assert.Equal(t, "renamed", snap[2].Name)
}

func TestMerger_HandleResolvesAndNormalizes(t *testing.T) {
	r := &fakeResolver{
		types:     map[int64]*models.DeviceType{1: {ID: 1, PrimaryData: ptr("temperature_f")}},
		locations: map[int64]*models.LocationRow{9: {LocationID: 9, OwnerID: ptr("own")}},
	}
	m := newMerger(realtime.NewCollection(nil), r)

	ch := m.Handle(context.Background(), event(realtime.EventInsert, map[string]any{
		"dev_eui": "X", "type": 1, "location_id": 9, "primary_data": 212,
		"last_data_updated_at": now.Add(-time.Minute).Format(time.RFC3339),
	}))

	assert.True(t, ch.Inserted)
	assert.InDelta(t, 100.0, ch.Device.TemperatureC, 1e-9)
	assert.Equal(t, "9", ch.Device.LocationID)
	assert.Equal(t, "own", ch.Device.FacilityID)
	assert.Equal(t, models.StatusOnline, ch.Device.Status)
}

func TestMerger_LookupFailureDegrades(t *testing.T) {
	m := newMerger(realtime.NewCollection(nil), &fakeResolver{fail: true})

	ch := m.Handle(context.Background(), event(realtime.EventUpdate, map[string]any{
		"dev_eui": "Y", "type": 1, "location_id": 9, "primary_data": 20,
	}))

	assert.Equal(t, "unknown", ch.Device.LocationID)
	assert.InDelta(t, 20.0, ch.Device.TemperatureC, 1e-9)
}

func TestMerger_SubscribeAndHooks(t *testing.T) {
	m := newMerger(realtime.NewCollection(nil), &fakeResolver{})
	changes, cancel := m.Subscribe(4)
	defer cancel()

	var hooked []string
	m.OnChange(func(_ context.Context, ch realtime.Change) { hooked = append(hooked, ch.Device.ID) })

	m.Handle(context.Background(), event(realtime.EventInsert, map[string]any{"dev_eui": "A"}))

	select {
	case ch := <-changes:
		assert.Equal(t, "A", ch.Device.ID)
	case <-time.After(time.Second):
		t.Fatal("no change received")
	}
	assert.Equal(t, []string{"A"}, hooked)
}

func TestMerger_SlowSubscriberDoesNotBlock(t *testing.T) {
	m := newMerger(realtime.NewCollection(nil), &fakeResolver{})
	_, cancel := m.Subscribe(1)
	defer cancel()

	for _, id := range []string{"A", "B", "C"} {
		m.Handle(context.Background(), event(realtime.EventInsert, map[string]any{"dev_eui": id}))
	}
	assert.Equal(t, 3, m.Collection().Len())
}

func TestStartDeviceRealtime(t *testing.T) {
	c := realtime.NewCollection([]models.Device{{ID: "A"}})
	m := newMerger(c, &fakeResolver{})
	src := &chanSource{}

	changes, cancel := m.Subscribe(8)
	defer cancel()

	stop, err := m.StartDeviceRealtime(context.Background(), src)
	require.NoError(t, err)

	src.Emit(event(realtime.EventUpdate, map[string]any{"dev_eui": "A", "name": "first"}))
	src.Emit(event(realtime.EventInsert, map[string]any{"dev_eui": "B"}))
	src.Emit(event(realtime.EventUpdate, map[string]any{"dev_eui": "A", "name": "second"}))

	for i := 0; i < 3; i++ {
		select {
		case <-changes:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for changes")
		}
	}
	stop()
	stop()

	snap := c.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "B", snap[0].ID)
	assert.Equal(t, "second", snap[1].Name)
	assert.True(t, src.unsubscribed)
}

func TestStartDeviceRealtime_StopMergesBufferedEvents(t *testing.T) {
	c := realtime.NewCollection(nil)
	m := newMerger(c, &fakeResolver{})
	src := &chanSource{}

	stop, err := m.StartDeviceRealtime(context.Background(), src)
	require.NoError(t, err)

	for _, id := range []string{"A", "B", "C", "D", "E"} {
		src.Emit(event(realtime.EventInsert, map[string]any{"dev_eui": id}))
	}
	stop()

	assert.Equal(t, 5, c.Len())
}

func TestDecodeEvent(t *testing.T) {
	ev, err := realtime.DecodeEvent([]byte(`{"type":"update","record":{"dev_eui":"E1","type":2,"primary_data":21.5}}`))
	require.NoError(t, err)
	assert.Equal(t, realtime.EventUpdate, ev.Type)
	assert.Equal(t, "E1", ev.Row.DevEUI)
	require.NotNil(t, ev.Row.TypeID)
	assert.Equal(t, int64(2), *ev.Row.TypeID)

	_, err = realtime.DecodeEvent([]byte(`{"type":"DELETE","record":{"dev_eui":"E1"}}`))
	assert.ErrorIs(t, err, realtime.ErrUnsupportedEvent)

	_, err = realtime.DecodeEvent([]byte(`{"type":"INSERT","record":{}}`))
	assert.Error(t, err)

	_, err = realtime.DecodeEvent([]byte(`not json`))
	assert.Error(t, err)
}
