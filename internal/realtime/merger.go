package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"cropwatch/internal/models"
	"cropwatch/internal/telemetry"
)

// Resolver looks up the reference rows a device row points at. A nil result
// with a nil error means the reference does not exist.
type Resolver interface {
	DeviceType(ctx context.Context, id int64) (*models.DeviceType, error)
	Location(ctx context.Context, id int64) (*models.LocationRow, error)
}

// ChangeHook runs after every merge, on the consumer goroutine.
type ChangeHook func(ctx context.Context, ch Change)

// Merger applies change events to a Collection and fans the resulting
// changes out to subscribers.
type Merger struct {
	collection *Collection
	resolver   Resolver
	normalizer *telemetry.Normalizer
	logger     *zap.Logger
	bufferSize int

	mu     sync.Mutex
	subs   map[int]chan Change
	nextID int
	hooks  []ChangeHook
}

type Option func(*Merger)

// WithBufferSize sets the event buffer between a source and the consumer.
func WithBufferSize(n int) Option {
	return func(m *Merger) {
		if n > 0 {
			m.bufferSize = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Merger) { m.logger = l }
}

func NewMerger(collection *Collection, resolver Resolver, normalizer *telemetry.Normalizer, opts ...Option) *Merger {
	m := &Merger{
		collection: collection,
		resolver:   resolver,
		normalizer: normalizer,
		logger:     zap.NewNop(),
		bufferSize: 256,
		subs:       map[int]chan Change{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Merger) Collection() *Collection { return m.collection }

// OnChange registers a hook called after each merge.
func (m *Merger) OnChange(h ChangeHook) {
	m.mu.Lock()
	m.hooks = append(m.hooks, h)
	m.mu.Unlock()
}

// Subscribe returns a channel receiving every change. Sends never block: a
// subscriber whose buffer is full misses the change.
func (m *Merger) Subscribe(buffer int) (<-chan Change, func()) {
	ch := make(chan Change, buffer)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Handle resolves, normalizes and merges one event. Lookups happen before
// the collection lock is taken, so concurrent callers may finish out of
// order; StartDeviceRealtime serialises events to avoid that.
func (m *Merger) Handle(ctx context.Context, ev Event) Change {
	dt, loc := ResolveReferences(ctx, m.resolver, ev.Row, m.logger)
	d := m.normalizer.Normalize(ev.Row, dt, loc)
	ch := m.collection.Apply(d)

	m.logger.Debug("merged device change",
		zap.String("dev_eui", d.ID),
		zap.String("type", string(ev.Type)),
		zap.Bool("inserted", ch.Inserted),
		zap.String("status", string(d.Status)))

	m.publish(ctx, ch)
	return ch
}

// ResolveReferences looks up the device type and location of row. Failed
// lookups are logged and degrade to nil.
func ResolveReferences(ctx context.Context, r Resolver, row models.DeviceRow, logger *zap.Logger) (*models.DeviceType, *models.LocationRow) {
	var (
		dt  *models.DeviceType
		loc *models.LocationRow
		err error
	)
	if row.TypeID != nil {
		if dt, err = r.DeviceType(ctx, *row.TypeID); err != nil {
			logger.Warn("device type lookup failed", zap.String("dev_eui", row.DevEUI), zap.Int64("type", *row.TypeID), zap.Error(err))
			dt = nil
		}
	}
	if row.LocationID != nil {
		if loc, err = r.Location(ctx, *row.LocationID); err != nil {
			logger.Warn("location lookup failed", zap.String("dev_eui", row.DevEUI), zap.Int64("location_id", *row.LocationID), zap.Error(err))
			loc = nil
		}
	}
	return dt, loc
}

func (m *Merger) publish(ctx context.Context, ch Change) {
	m.mu.Lock()
	hooks := append([]ChangeHook(nil), m.hooks...)
	for id, sub := range m.subs {
		select {
		case sub <- ch:
		default:
			m.logger.Warn("subscriber is slow, dropping change", zap.Int("subscriber", id), zap.String("dev_eui", ch.Device.ID))
		}
	}
	m.mu.Unlock()

	for _, h := range hooks {
		h(ctx, ch)
	}
}

// StartDeviceRealtime subscribes to source and merges its events on a
// single consumer goroutine. The returned function stops the subscription,
// merges the events still buffered and waits for the consumer to finish.
// Cancelling ctx instead drops buffered events.
func (m *Merger) StartDeviceRealtime(ctx context.Context, source Source) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	events := make(chan Event, m.bufferSize)

	unsubscribe, err := source.Subscribe(ctx, func(ev Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		cancel()
		return nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				m.drain(ctx, events)
				return
			case ev := <-events:
				m.Handle(ctx, ev)
			}
		}
	}()

	m.logger.Info("device realtime started", zap.Int("buffer", m.bufferSize))

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			close(stop)
			<-done
			cancel()
			m.logger.Info("device realtime stopped")
		})
	}, nil
}

func (m *Merger) drain(ctx context.Context, events <-chan Event) {
	for {
		select {
		case ev := <-events:
			m.Handle(ctx, ev)
		default:
			return
		}
	}
}
