package notify

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SubjectWorkAvailable is published whenever a producer enqueues work,
// so idle dispatcher processes can wake from their idle-sleep early
// instead of waiting out the full poll interval.
const SubjectWorkAvailable = "throttle.notify"

// Notifier is a best-effort wake-up signal, grounded on the teacher's
// internal/queue/nats/nats.go connection setup. Unlike that queue, it
// carries no payload and no delivery guarantee: the work-store remains
// the single source of truth for what is claimable, so a dropped or
// duplicated notification only costs a wasted or delayed poll, never a
// correctness violation.
type Notifier struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// NewNotifier connects to natsURL with the teacher's infinite-reconnect
// policy.
func NewNotifier(natsURL string, logger *zap.Logger) (*Notifier, error) {
	opts := []nats.Option{
		nats.Name("throttlepipe dispatcher"),
		nats.Timeout(10 * time.Second),
		nats.ReconnectWait(5 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	logger.Info("connected to nats", zap.String("url", conn.ConnectedUrl()))
	return &Notifier{conn: conn, logger: logger}, nil
}

// Ping publishes an empty wake-up message. Errors are logged, not
// returned: a missed ping degrades to poll-interval latency, not a lost
// work item.
func (n *Notifier) Ping() {
	if err := n.conn.Publish(SubjectWorkAvailable, nil); err != nil {
		n.logger.Warn("failed to publish work-available ping", zap.Error(err))
	}
}

// Subscribe registers handler to run on every wake-up ping, returning
// the subscription so the caller can Unsubscribe on shutdown.
func (n *Notifier) Subscribe(handler func()) (*nats.Subscription, error) {
	return n.conn.Subscribe(SubjectWorkAvailable, func(msg *nats.Msg) {
		handler()
	})
}

func (n *Notifier) Close() {
	n.conn.Close()
}
