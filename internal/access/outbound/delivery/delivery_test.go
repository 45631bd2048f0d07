package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shandysiswandi/carepass/internal/access/entity"
	"github.com/shandysiswandi/carepass/internal/pkg/goroutine"
	"github.com/shandysiswandi/carepass/internal/pkg/instrument"
	"github.com/shandysiswandi/carepass/internal/pkg/messaging"
	"github.com/shandysiswandi/carepass/internal/shared/event"
)

type fixedID string

func (f fixedID) Generate() string { return string(f) }

func TestBrokerPublishesEvent(t *testing.T) {
	// Arrange
	broker := messaging.NewMemory()
	defer broker.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := broker.Declare(event.OTPDeliveryDestination, "test"); err != nil {
		t.Fatalf("Declare() error = %v", err)
	}
	got := make(chan messaging.Message, 1)
	go func() {
		_ = broker.Consume(ctx, event.OTPDeliveryDestination, "test", func(_ context.Context, m messaging.Message) error {
			got <- m
			return nil
		})
	}()

	b := NewBroker(broker, fixedID("d-1"), instrument.NewNoop())

	// Act
	err := b.Deliver(instrument.SetCorrelationID(ctx, "cid-1"), entity.Delivery{
		Purpose:  entity.PurposeLogin,
		Channel:  "alice@clinic.test",
		Code:     "483920",
		Validity: 2 * time.Minute,
	})

	// Assert
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	m := <-got
	var msg event.OTPDeliveryMessage
	if err := json.Unmarshal(m.Body, &msg); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if msg.DeliveryID != "d-1" || msg.Code != "483920" || msg.ValidFor != 120 || msg.Purpose != "login" {
		t.Fatalf("message = %+v", msg)
	}
	if m.Header(keyOfCorrelationID) != "cid-1" {
		t.Fatalf("cID header = %q", m.Header(keyOfCorrelationID))
	}
}

type recorder struct {
	done chan entity.Delivery
	err  error
}

func (r *recorder) Deliver(ctx context.Context, d entity.Delivery) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.done <- d
	return r.err
}

func TestAsyncSurvivesRequestCancel(t *testing.T) {
	// Arrange
	gm := goroutine.NewManager(4)
	rec := &recorder{done: make(chan entity.Delivery, 1)}
	a := NewAsync(rec, gm)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Act
	err := a.Deliver(ctx, entity.Delivery{Channel: "+1-555-0100", Code: "111111"})

	// Assert
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	select {
	case d := <-rec.done:
		if d.Code != "111111" {
			t.Fatalf("delivered = %+v", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never ran")
	}
	_ = gm.Wait()
}

func TestAsyncDropsWhenFull(t *testing.T) {
	// Arrange
	gm := goroutine.NewManager(1)
	block := make(chan struct{})
	gm.Go(context.Background(), func(context.Context) error { <-block; return nil })
	a := NewAsync(&recorder{done: make(chan entity.Delivery, 1)}, gm)

	// Act
	err := a.Deliver(context.Background(), entity.Delivery{Channel: "x"})

	// Assert
	close(block)
	if !errors.Is(err, ErrDropped) {
		t.Fatalf("Deliver() error = %v, want dropped", err)
	}
	_ = gm.Wait()
}
