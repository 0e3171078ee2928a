// File: internal/messenger/messenger_test.go
package messenger

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/api/schemas"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/config"
)

func newTestBus() *Bus {
	return NewBus(config.MessengerConfig{
		AckTimeout:           100 * time.Millisecond,
		SecondStepAckTimeout: 50 * time.Millisecond,
	}, zap.NewNop())
}

func TestSendConfirmed(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := newTestBus()
	defer bus.Close()

	payload := json.RawMessage(`{"if":"caixa","status":"success","result":[]}`)

	// Consumer acks everything it receives.
	go func() {
		select {
		case msg := <-bus.Results():
			assert.Equal(t, schemas.MsgTypeResult, msg.Type)
			assert.Equal(t, schemas.ActionSimulationResult, msg.Payload.Action)
			assert.Equal(t, msg.RequestID, msg.Payload.RequestID)
			bus.Acknowledge(msg.RequestID, true, "ok", "")
		case <-bus.Done():
		}
	}()

	receipt := bus.Send(context.Background(), schemas.ActionSimulationResult, payload, time.Second)
	assert.True(t, receipt.Confirmed)
	assert.NotEmpty(t, receipt.RequestID)
}

func TestSendAckTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := newTestBus()
	defer bus.Close()

	start := time.Now()
	receipt := bus.Send(context.Background(), schemas.ActionSimulationResult, nil, 80*time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, receipt.Confirmed, "a missed ack resolves unconfirmed, it does not error")
	assert.NotEmpty(t, receipt.RequestID)
	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
}

func TestSendFailedAckIsUnconfirmed(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := newTestBus()
	defer bus.Close()

	go func() {
		select {
		case msg := <-bus.Results():
			bus.Acknowledge(msg.RequestID, false, "", "backend rejected payload")
		case <-bus.Done():
		}
	}()

	receipt := bus.Send(context.Background(), schemas.ActionSimulationResult, nil, time.Second)
	assert.False(t, receipt.Confirmed)
}

func TestSendWithRetryEventuallyConfirms(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := newTestBus()
	defer bus.Close()

	// Ignore the first message, ack the second.
	go func() {
		for i := 0; ; i++ {
			select {
			case msg := <-bus.Results():
				if i > 0 {
					bus.Acknowledge(msg.RequestID, true, "ok", "")
					return
				}
			case <-bus.Done():
				return
			}
		}
	}()

	receipt := bus.SendWithRetry(context.Background(), schemas.ActionSimulationResult, nil,
		50*time.Millisecond, 3, 10*time.Millisecond)
	assert.True(t, receipt.Confirmed)
}

func TestAcknowledgeUnknownRequest(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	require.NotPanics(t, func() {
		bus.Acknowledge("missing-id", true, "", "")
	})
}

func TestCloseUnblocksSender(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := newTestBus()

	done := make(chan schemas.Receipt, 1)
	go func() {
		done <- bus.Send(context.Background(), schemas.ActionSimulationResult, nil, 10*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	bus.Close()

	select {
	case receipt := <-done:
		assert.False(t, receipt.Confirmed)
	case <-time.After(time.Second):
		t.Fatal("Send did not unblock on Close")
	}
}

func TestSendAfterClose(t *testing.T) {
	bus := newTestBus()
	bus.Close()

	receipt := bus.Send(context.Background(), schemas.ActionSimulationResult, nil, time.Second)
	assert.False(t, receipt.Confirmed)
}
