// File: internal/messenger/messenger.go

// Package messenger is the in-process bridge between the per-bank
// automation engines and the orchestrator. Engines publish finished
// payloads and block for an acknowledgement; the orchestrator consumes
// results and acks them after forwarding. Correlation is by request id,
// and a missed ack degrades to an unconfirmed receipt instead of an error.
package messenger

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/api/schemas"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/config"
)

// Bus routes result messages to one consumer and acks back to the waiting
// publisher.
type Bus struct {
	logger *zap.Logger
	cfg    config.MessengerConfig

	mu      sync.Mutex
	pending map[string]chan schemas.AckMessage

	inbox     chan schemas.ResultMessage
	done      chan struct{}
	closeOnce sync.Once
}

func NewBus(cfg config.MessengerConfig, logger *zap.Logger) *Bus {
	return &Bus{
		logger:  logger.Named("messenger"),
		cfg:     cfg,
		pending: make(map[string]chan schemas.AckMessage),
		inbox:   make(chan schemas.ResultMessage, 16),
		done:    make(chan struct{}),
	}
}

// Results is the orchestrator's consumption side. Consumers should select
// against Done as well: the inbox channel is never closed.
func (b *Bus) Results() <-chan schemas.ResultMessage { return b.inbox }

// Done is closed when the bus shuts down.
func (b *Bus) Done() <-chan struct{} { return b.done }

// Send publishes one result and waits up to timeout for the ack. The
// returned receipt is advisory: Confirmed is false on timeout or when the
// consumer reported a downstream failure, and the caller decides whether
// that warrants a retry.
func (b *Bus) Send(ctx context.Context, action string, payload json.RawMessage, timeout time.Duration) schemas.Receipt {
	if timeout <= 0 {
		timeout = b.cfg.AckTimeout
	}
	requestID := uuid.NewString()
	receipt := schemas.Receipt{RequestID: requestID}

	select {
	case <-b.done:
		return receipt
	default:
	}

	ackCh := make(chan schemas.AckMessage, 1)
	b.mu.Lock()
	b.pending[requestID] = ackCh
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, requestID)
		b.mu.Unlock()
	}()

	msg := schemas.ResultMessage{
		Type:      schemas.MsgTypeResult,
		RequestID: requestID,
		Payload: schemas.ResultDetail{
			Action:    action,
			Payload:   payload,
			RequestID: requestID,
		},
	}

	select {
	case b.inbox <- msg:
	case <-b.done:
		return receipt
	case <-ctx.Done():
		return receipt
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case ack := <-ackCh:
		receipt.Confirmed = ack.Success
		return receipt
	case <-b.done:
		return receipt
	case <-t.C:
		b.logger.Warn("Ack wait timed out.",
			zap.String("request_id", requestID), zap.Duration("timeout", timeout))
		return receipt
	case <-ctx.Done():
		return receipt
	}
}

// SendWithRetry repeats Send until a confirmed receipt arrives, with a
// fixed delay between attempts. The last receipt is returned either way.
func (b *Bus) SendWithRetry(ctx context.Context, action string, payload json.RawMessage, timeout time.Duration, attempts int, delay time.Duration) schemas.Receipt {
	var receipt schemas.Receipt
	for attempt := 1; attempt <= attempts; attempt++ {
		receipt = b.Send(ctx, action, payload, timeout)
		if receipt.Confirmed {
			return receipt
		}
		b.logger.Warn("Result delivery unconfirmed.",
			zap.Int("attempt", attempt), zap.Int("max_attempts", attempts))
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return receipt
			case <-time.After(delay):
			}
		}
	}
	return receipt
}

// Acknowledge resolves the publisher waiting on requestID. Unknown ids are
// dropped silently: the publisher may have timed out already.
func (b *Bus) Acknowledge(requestID string, success bool, response, errMsg string) {
	b.mu.Lock()
	ch, ok := b.pending[requestID]
	b.mu.Unlock()
	if !ok {
		b.logger.Debug("Ack for unknown or expired request.", zap.String("request_id", requestID))
		return
	}
	ack := schemas.AckMessage{
		Type:      schemas.MsgTypeAck,
		RequestID: requestID,
		Success:   success,
		Response:  response,
		Error:     errMsg,
	}
	select {
	case ch <- ack:
	default:
	}
}

// Close stops accepting new sends and unblocks every waiter.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}
