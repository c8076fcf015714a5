package kafka

import (
	"log"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

// Router fans Publish calls out to per-topic producers, keyed by the
// x-event-type header. It satisfies the same Publish contract as Producer
// so callers never know how many topics sit behind it.
type Router struct {
	Routes map[string]*Producer
}

func (r *Router) Publish(key, value []byte, headers ...kafka.Header) {
	for _, h := range headers {
		if h.Key == HeaderEventType {
			if p, ok := r.Routes[string(h.Value)]; ok {
				p.Publish(key, value, headers...)
				return
			}
			log.Printf("kafka router: no route for event type %s", h.Value)
			return
		}
	}
	log.Printf("kafka router: message without %s header dropped", HeaderEventType)
}

func (r *Router) Close() {
	for _, p := range r.Routes {
		p.Close()
	}
}

func (r *Router) WaitClosed() {
	for _, p := range r.Routes {
		p.WaitClosed()
	}
}
