package relay

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Listener blocks on a queue-database notification channel and returns the
// next payload.
type Listener interface {
	WaitForNotification(ctx context.Context, channel string) (string, error)
}

var _ Listener = (*PgListener)(nil)

// PgListener implements Listener over Postgres LISTEN/NOTIFY. Each wait
// acquires a dedicated connection and releases it afterwards, so a relay
// restart never leaks subscriptions.
type PgListener struct {
	pool *pgxpool.Pool
}

func NewPgListener(pool *pgxpool.Pool) *PgListener {
	return &PgListener{pool: pool}
}

func (l *PgListener) WaitForNotification(ctx context.Context, channel string) (string, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		// Drop the subscription before the connection goes back to the pool.
		_, _ = conn.Exec(context.WithoutCancel(ctx), "UNLISTEN *")
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return "", err
	}
	notification, err := conn.Conn().WaitForNotification(ctx)
	if err != nil {
		return "", err
	}
	return notification.Payload, nil
}

var _ HeightSource = (*HeightNotifier)(nil)

// HeightNotifier resolves the next host-chain height to process. The primary
// path is a push notification published by the host-chain indexer; a wait
// timeout, a listen error or a malformed payload each fall back to a direct
// height query, so progress never depends on the notification channel.
type HeightNotifier struct {
	cfg      Config
	listener Listener
	host     HostChainReader
	log      zerolog.Logger
}

func NewHeightNotifier(cfg Config, listener Listener, host HostChainReader, log zerolog.Logger) *HeightNotifier {
	return &HeightNotifier{
		cfg:      cfg,
		listener: listener,
		host:     host,
		log:      log.With().Str("component", "height-notifier").Logger(),
	}
}

func (n *HeightNotifier) NextHeight(ctx context.Context) (uint64, error) {
	waitCtx, cancel := context.WithTimeout(ctx, n.cfg.NotifyTimeout)
	defer cancel()

	payload, err := n.listener.WaitForNotification(waitCtx, n.cfg.NotifyChannel)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			n.log.Warn().Msg("no new-block notification, proceeding on timeout")
		} else {
			n.log.Warn().Err(err).Msg("notification wait failed, falling back to height query")
		}
		return n.host.BlockNumber(ctx)
	}

	height, err := strconv.ParseUint(payload, 10, 64)
	if err != nil {
		n.log.Error().Str("payload", payload).Msg("invalid payload for new-block notification")
		return n.host.BlockNumber(ctx)
	}
	return height, nil
}
