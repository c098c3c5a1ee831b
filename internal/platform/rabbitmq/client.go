// Package rabbitmq implements the durable queue transport used to defer
// boleto and NFSe generation work. Queue messages are pointers back into
// the task store, never task snapshots: the store stays the single
// source of truth and a stale message can do no harm.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/wanderleymp/finance-api-sub002/internal/redact"
)

// Well-known queue names. All are durable and paired with a dead-letter
// queue bound to the dlx exchange.
const (
	BoletoQueue         = "boleto_generation_queue"
	NFSeQueue           = "nfse_generation_queue"
	MessageInvoiceQueue = "message_invoice_queue"
)

const (
	deadLetterExchange = "dlx"

	// retryCountHeader carries the application-level delivery attempt
	// counter. The amqp client only exposes a boolean Redelivered flag
	// and nack-requeue does not advance the broker's x-death header, so
	// the counter is incremented explicitly on republish.
	retryCountHeader = "x-retry-count"
)

// wellKnownQueues are asserted on every connect.
var wellKnownQueues = []string{BoletoQueue, NFSeQueue, MessageInvoiceQueue}

// DeadLetterQueue returns the name of the paired dead-letter queue for
// the given queue. It doubles as the dlx routing key.
func DeadLetterQueue(queue string) string {
	return queue + ".dlq"
}

// Message is the pointer envelope published for every generation task.
type Message struct {
	TaskID     int64  `json:"task_id"`
	MovementID int64  `json:"movement_id"`
	// ScheduledFor is the logical schedule in RFC3339, informational
	// only: queue delivery is immediate, scheduling is enforced against
	// the task store.
	ScheduledFor string `json:"scheduled_for,omitempty"`
}

// Handler processes one delivered message. A nil return acknowledges the
// message; an error drives the retry/dead-letter cycle.
type Handler func(ctx context.Context, msg Message) error

// Publisher is the narrow interface producers depend on.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg Message) error
}

// Config holds the transport settings.
type Config struct {
	URL            string
	ReconnectDelay time.Duration
	MaxRetries     int
}

// Client is an explicitly constructed, dependency-injected broker client
// with a connect/close lifecycle owned by the composition root. It is
// never package-level state.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu            sync.Mutex
	conn          *amqp.Connection
	channel       *amqp.Channel
	closed        bool
	reconnecting  bool
	subscriptions []subscription
}

// subscription records an active consumer so it can be re-established
// after a reconnect.
type subscription struct {
	queue   string
	handler Handler
}

// Ensure Client implements Publisher
var _ Publisher = (*Client)(nil)

// NewClient creates a new broker client. Connect must be called before
// use; Publish and Consume also connect lazily if needed.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Client{
		cfg:    cfg,
		logger: logger.With("component", "rabbitmq"),
	}
}

// Connect establishes the broker connection, asserts all well-known
// queues (durable, dead-letter paired) and re-establishes any active
// subscriptions. Repeated calls on a live connection are no-ops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil && !c.conn.IsClosed() {
		return nil
	}

	c.logger.Info("connecting to broker")

	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %s", redact.Error(err))
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	// One unacknowledged message per consumer. Generation tasks block on
	// slow external webhook calls; prefetch=1 keeps a task from being
	// considered in-flight anywhere but where it is actually running and
	// stops one consumer from hoarding deliveries.
	if err := channel.Qos(1, 0, false); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to set channel prefetch: %w", err)
	}

	if err := declareTopology(channel); err != nil {
		_ = conn.Close()
		return err
	}

	c.conn = conn
	c.channel = channel

	closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))
	go c.watchConnection(closeCh)

	for _, sub := range c.subscriptions {
		if err := c.startConsumerLocked(sub); err != nil {
			c.logger.Error("failed to re-establish consumer",
				"queue", sub.queue,
				"error", err)
		}
	}

	c.logger.Info("connected to broker")
	return nil
}

// declareTopology asserts the durable queues, the dead-letter exchange
// and the paired dead-letter queues.
func declareTopology(channel *amqp.Channel) error {
	err := channel.ExchangeDeclare(deadLetterExchange, "direct", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare dead-letter exchange: %w", err)
	}

	for _, queue := range wellKnownQueues {
		dlq := DeadLetterQueue(queue)

		_, err := channel.QueueDeclare(queue, true, false, false, false, amqp.Table{
			"x-dead-letter-exchange":    deadLetterExchange,
			"x-dead-letter-routing-key": dlq,
		})
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", queue, err)
		}

		if _, err := channel.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dead-letter queue %s: %w", dlq, err)
		}
		if err := channel.QueueBind(dlq, dlq, deadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind dead-letter queue %s: %w", dlq, err)
		}
	}

	return nil
}

// watchConnection clears the cached handles on an unexpected close and
// schedules a reconnect attempt. Publish or consume calls made while
// disconnected trigger a fresh connect on their own.
func (c *Client) watchConnection(closeCh <-chan *amqp.Error) {
	err, ok := <-closeCh
	if !ok || err == nil {
		// Clean shutdown via Close.
		return
	}

	c.logger.Warn("broker connection closed unexpectedly, scheduling reconnect",
		"error", redact.String(err.Error()),
		"delay", c.cfg.ReconnectDelay.String())

	c.mu.Lock()
	c.conn = nil
	c.channel = nil
	c.scheduleReconnectLocked()
	c.mu.Unlock()
}

// scheduleReconnectLocked arms a single reconnect timer. The timer keeps
// rearming itself after failed attempts until a connect succeeds or the
// client is closed; a successful connect replays every registered
// subscription.
func (c *Client) scheduleReconnectLocked() {
	if c.closed || c.reconnecting {
		return
	}
	c.reconnecting = true

	time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.mu.Lock()
		c.reconnecting = false
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		if err := c.Connect(context.Background()); err != nil {
			c.logger.Error("broker reconnect failed",
				"error", redact.Error(err))
			c.mu.Lock()
			c.scheduleReconnectLocked()
			c.mu.Unlock()
		}
	})
}

// Publish serializes the message and sends it with persistent delivery.
// A failure is returned loudly; callers decide whether delivery is
// best-effort (producers log and move on, the sweeper is the fallback).
func (c *Client) Publish(ctx context.Context, queue string, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}
	return c.publishRaw(ctx, queue, body, nil)
}

func (c *Client) publishRaw(ctx context.Context, queue string, body []byte, headers amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return err
	}

	err := c.channel.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to queue %s: %w", queue, err)
	}

	c.logger.Debug("message published",
		"queue", queue,
		"bytes", len(body))
	return nil
}

// Consume subscribes the handler to the queue with manual acknowledgment
// and prefetch=1. The subscription survives reconnects.
//
// Delivery outcome per message:
//   - handler nil: ack, the message is gone for good;
//   - handler error with attempts left: republish with an incremented
//     retry counter and ack the original;
//   - handler error at the retry ceiling: reject without requeue, the
//     broker dead-letters it to <queue>.dlq for manual inspection.
//
// The subscription is registered before any connection attempt, so a
// consumer requested while the broker is down is established
// automatically once a reconnect succeeds.
func (c *Client) Consume(ctx context.Context, queue string, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub := subscription{queue: queue, handler: handler}
	c.subscriptions = append(c.subscriptions, sub)

	wasConnected := c.conn != nil && !c.conn.IsClosed()
	if err := c.connectLocked(ctx); err != nil {
		// Subscription retained; the reconnect loop replays it when the
		// broker comes back.
		c.scheduleReconnectLocked()
		return err
	}
	if !wasConnected {
		// connectLocked just re-established every registered
		// subscription, this one included.
		return nil
	}
	return c.startConsumerLocked(sub)
}

func (c *Client) startConsumerLocked(sub subscription) error {
	deliveries, err := c.channel.Consume(sub.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consumer on %s: %w", sub.queue, err)
	}

	go c.consumeLoop(sub, deliveries)

	c.logger.Info("consumer started", "queue", sub.queue)
	return nil
}

// consumeLoop runs until the delivery channel closes (connection loss or
// shutdown). A failed business operation never stops the loop.
func (c *Client) consumeLoop(sub subscription, deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		c.handleDelivery(sub, d)
	}
}

func (c *Client) handleDelivery(sub subscription, d amqp.Delivery) {
	log := c.logger.With("queue", sub.queue)

	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		// A message that cannot be decoded will never succeed; send it
		// straight to the dead-letter queue.
		log.Error("rejecting undecodable message",
			"error", err)
		if rejectErr := d.Reject(false); rejectErr != nil {
			log.Error("failed to reject message", "error", rejectErr)
		}
		return
	}

	handlerErr := sub.handler(context.Background(), msg)
	if handlerErr == nil {
		if err := d.Ack(false); err != nil {
			log.Error("failed to ack message",
				"task_id", msg.TaskID,
				"error", err)
		}
		return
	}

	attempts := RetryCount(d.Headers) + 1
	log.Error("message handler failed",
		"task_id", msg.TaskID,
		"attempt", attempts,
		"error", redact.Error(handlerErr))

	if attempts >= c.cfg.MaxRetries {
		log.Warn("retry ceiling reached, dead-lettering message",
			"task_id", msg.TaskID,
			"dead_letter_queue", DeadLetterQueue(sub.queue))
		if err := d.Reject(false); err != nil {
			log.Error("failed to dead-letter message", "error", err)
		}
		return
	}

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[retryCountHeader] = int32(attempts)

	if err := c.publishRaw(context.Background(), sub.queue, d.Body, headers); err != nil {
		log.Error("failed to republish message for retry, requeueing instead",
			"task_id", msg.TaskID,
			"error", redact.Error(err))
		if nackErr := d.Nack(false, true); nackErr != nil {
			log.Error("failed to nack message", "error", nackErr)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		log.Error("failed to ack message after republish", "error", err)
	}
}

// RetryCount extracts the application-level delivery attempt counter
// from message headers. Absent or malformed headers count as zero.
func RetryCount(headers amqp.Table) int {
	if headers == nil {
		return 0
	}
	switch v := headers[retryCountHeader].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}

// Close shuts the client down. No reconnect is attempted afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Error("failed to close channel", "error", err)
		}
		c.channel = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.conn = nil
			return fmt.Errorf("failed to close broker connection: %w", err)
		}
		c.conn = nil
	}
	return nil
}
