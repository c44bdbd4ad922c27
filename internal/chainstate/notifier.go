package chainstate

import (
	"context"
	"fmt"
	"syscall"

	zmq "github.com/pebbe/zmq4"

	"github.com/braidnet/braidd/pkg/log"
)

// TopicCutAdvance is the ZMQ topic the chain-state engine publishes advanced
// cuts on.
const TopicCutAdvance = "cutadvance"

// Notifier subscribes to the chain-state engine's ZMQ notification stream
// and feeds advanced cuts into a Tracker.
type Notifier struct {
	socket   *zmq.Socket
	endpoint string
	tracker  *Tracker
	logger   *log.Logger
}

// NewNotifier creates a ZMQ notifier for the given engine endpoint.
func NewNotifier(endpoint string, tracker *Tracker, logger *log.Logger) (*Notifier, error) {
	socket, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ socket: %w", err)
	}

	return &Notifier{
		socket:   socket,
		endpoint: endpoint,
		tracker:  tracker,
		logger:   logger.WithComponent("notifier"),
	}, nil
}

// Connect connects to the ZMQ endpoint and subscribes to cut advances.
func (n *Notifier) Connect() error {
	if err := n.socket.SetSubscribe(TopicCutAdvance); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", TopicCutAdvance, err)
	}
	if err := n.socket.Connect(n.endpoint); err != nil {
		return fmt.Errorf("failed to connect to ZMQ endpoint %s: %w", n.endpoint, err)
	}
	n.logger.Info("connected to engine notifications", "endpoint", n.endpoint, "topic", TopicCutAdvance)
	return nil
}

// Listen consumes cut-advance notifications until the context is cancelled.
// Malformed messages are logged and skipped.
func (n *Notifier) Listen(ctx context.Context) error {
	n.logger.Info("starting cut notification listener")

	for {
		select {
		case <-ctx.Done():
			n.logger.Info("cut notification listener stopping")
			return ctx.Err()
		default:
		}

		msg, err := n.socket.RecvMessageBytes(zmq.DONTWAIT)
		if err != nil {
			if zmq.AsErrno(err) == zmq.Errno(syscall.EAGAIN) {
				// No message available.
				continue
			}
			n.logger.Error("failed to receive ZMQ message", "error", err)
			continue
		}

		if len(msg) < 2 {
			n.logger.Warn("received malformed ZMQ message", "parts", len(msg))
			continue
		}

		topic := string(msg[0])
		if topic != TopicCutAdvance {
			n.logger.Warn("unknown ZMQ topic", "topic", topic)
			continue
		}

		cut, err := decodeCut(msg[1])
		if err != nil {
			n.logger.WithError(err).Error("failed to decode cut notification")
			continue
		}

		if advanced := n.tracker.Apply(cut); len(advanced) > 0 {
			n.logger.Debug("applied cut notification", "advanced_chains", len(advanced))
		}
	}
}

// Close closes the ZMQ socket.
func (n *Notifier) Close() error {
	if n.socket != nil {
		return n.socket.Close()
	}
	return nil
}
