package kafka

import (
	"context"
	"testing"
)

// Shutdown closes the inbox and cancels the run context in quick succession;
// neither ordering may close the inbox twice. Failure mode is a panic.
func TestProducerCloseRacesContextCancel(t *testing.T) {
	for i := 0; i < 100; i++ {
		p := NewProducer([]string{"localhost:9092"}, "orders.test", 8)
		ctx, cancel := context.WithCancel(context.Background())
		p.Start(ctx)
		p.Close()
		cancel()
		p.WaitClosed()
	}
}

func TestProducerCloseIsIdempotent(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "orders.test", 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	p.Close()
	p.Close()
	p.WaitClosed()
}
