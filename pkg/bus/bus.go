// Package bus correlates dispatched sub-requests with the sub-responses
// that come back over a message broker, the same role the Python original's
// RcacheRmq/RcacheRmqConnection pair plays: publish on a shared direct
// exchange keyed by the reply queue name, listen on a private exclusive queue
// bound to that exchange, and match incoming deliveries against the set of
// fingerprints a caller is currently waiting on. Grounded on
// original_source/src/afc-packages/rcache/rcache_rmq.py; re-implemented
// with a long-lived connection and a persistent correlation map instead of
// the Python original's single-shot connection-per-call, since the Go
// client is expected to run as one long-lived consumer goroutine rather
// than open a channel per request.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"afc-coordinator/pkg/logger"
)

// ExchangeName is the direct exchange all coordinator-svc instances publish
// dispatched sub-requests to and consume matching sub-responses from.
const ExchangeName = "afc_dispatch_exchange"

// Envelope is the wire message carried over the exchange, mirroring the
// Python original's RmqReqRespKey.
type Envelope struct {
	Fingerprint string          `json:"req_cfg_digest"`
	Request     json.RawMessage `json:"afc_req,omitempty"`
	Response    json.RawMessage `json:"afc_resp,omitempty"`
}

// Correlator publishes dispatched sub-requests and correlates returned
// sub-responses against callers awaiting a specific fingerprint.
type Correlator struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	queue   amqp.Queue
	deliver <-chan amqp.Delivery

	waiters *waiterTable

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the broker at url, declares the shared exchange, and
// creates a private exclusive queue bound to it for this process's
// responses. The returned Correlator's Run method must be started in a
// goroutine to begin delivering matched responses.
func Dial(url string) (*Correlator, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("bus: dial failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bus: channel open failed: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeName, "direct", false, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bus: exchange declare failed: %w", err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bus: queue declare failed: %w", err)
	}

	if err := ch.QueueBind(q.Name, q.Name, ExchangeName, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bus: queue bind failed: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bus: consume failed: %w", err)
	}

	c := &Correlator{
		conn:    conn,
		ch:      ch,
		queue:   q,
		deliver: deliveries,
		waiters: newWaiterTable(),
		done:    make(chan struct{}),
	}

	go c.dispatchLoop()

	return c, nil
}

// QueueName returns this Correlator's private response queue name, which
// dispatched sub-requests must carry as a reply-to routing key.
func (c *Correlator) QueueName() string {
	return c.queue.Name
}

func (c *Correlator) dispatchLoop() {
	for {
		select {
		case <-c.done:
			return
		case d, ok := <-c.deliver:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal(d.Body, &env); err != nil {
				logger.Log.Warn("bus: discarding malformed delivery", "error", err)
				continue
			}
			c.waiters.deliver(env)
		}
	}
}

// Await registers interest in a sub-response keyed by fingerprint and
// blocks until it arrives, ctx is cancelled, or timeout elapses.
func (c *Correlator) Await(ctx context.Context, fingerprint string, timeout time.Duration) (*Envelope, error) {
	ch := c.waiters.register(fingerprint)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case env, ok := <-ch:
		if !ok {
			return nil, ErrTimedOut
		}
		return &env, nil
	case <-timer.C:
		c.waiters.remove(fingerprint, ch)
		return nil, ErrTimedOut
	case <-ctx.Done():
		c.waiters.remove(fingerprint, ch)
		return nil, ctx.Err()
	case <-c.done:
		c.waiters.remove(fingerprint, ch)
		return nil, ErrTimedOut
	}
}

// Publish sends a sub-request or sub-response envelope to replyQueue, the
// response queue name advertised by the waiting Correlator.
func (c *Correlator) Publish(ctx context.Context, replyQueue string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bus: marshal envelope failed: %w", err)
	}

	return c.ch.PublishWithContext(ctx, ExchangeName, replyQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Body:         body,
	})
}

// Close stops the dispatch loop and releases the channel and connection.
func (c *Correlator) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if chErr := c.ch.Close(); chErr != nil {
			err = chErr
		}
		if connErr := c.conn.Close(); connErr != nil && err == nil {
			err = connErr
		}
	})
	return err
}

// ErrTimedOut is returned by Await when no matching response arrives
// before the timeout or the correlator is closed first.
var ErrTimedOut = timeoutError{}

type timeoutError struct{}

func (timeoutError) Error() string { return "bus: timed out waiting for response" }
