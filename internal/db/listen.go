package db

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"cropwatch/internal/realtime"
)

// Listener is a realtime.Source fed by Postgres NOTIFY on a channel whose
// payloads use the {"type", "record"} change format.
type Listener struct {
	db      *DB
	channel string
	logger  *zap.Logger
	retry   time.Duration
}

func NewListener(d *DB, channel string, logger *zap.Logger) *Listener {
	return &Listener{db: d, channel: channel, logger: logger, retry: 2 * time.Second}
}

// Subscribe holds a dedicated connection in LISTEN mode and reconnects after
// failures until unsubscribed.
func (l *Listener) Subscribe(ctx context.Context, h realtime.Handler) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	conn, err := l.listen(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			err := l.consume(ctx, conn, h)
			release(conn)
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn("listen connection lost, reconnecting", zap.String("channel", l.channel), zap.Error(err))

			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(l.retry):
				}
				if conn, err = l.listen(ctx); err == nil {
					break
				}
				l.logger.Warn("failed to re-listen", zap.Error(err))
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}, nil
}

type pooledConn interface {
	Conn() *pgx.Conn
	Release()
}

// release drops the LISTEN before the connection goes back to the pool.
func release(conn pooledConn) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := conn.Conn().Exec(ctx, "UNLISTEN *"); err != nil {
		_ = conn.Conn().Close(ctx)
	}
	conn.Release()
}

func (l *Listener) listen(ctx context.Context) (pooledConn, error) {
	conn, err := l.db.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, err
	}
	l.logger.Info("listening for device changes", zap.String("channel", l.channel))
	return conn, nil
}

func (l *Listener) consume(ctx context.Context, conn pooledConn, h realtime.Handler) error {
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		ev, err := realtime.DecodeEvent([]byte(n.Payload))
		if err != nil {
			if errors.Is(err, realtime.ErrUnsupportedEvent) {
				l.logger.Debug("ignoring notification", zap.Error(err))
			} else {
				l.logger.Warn("bad notification payload", zap.Error(err))
			}
			continue
		}
		h(ev)
	}
}
