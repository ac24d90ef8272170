package http

import (
	"sync"

	"github.com/vovakirdan/connectus-realtime/internal/core"
	"github.com/vovakirdan/connectus-realtime/internal/proto"
)

// wsSink is the per-connection outbound FIFO. Producers never block: a full
// queue drops the frame with core.ErrBackpressure. The single writeLoop of
// the connection is the only consumer, which keeps per-connection order.
type wsSink struct {
	out  chan proto.Outbound
	done chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	reason    string
}

func newWSSink(buffer int) *wsSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &wsSink{
		out:  make(chan proto.Outbound, buffer),
		done: make(chan struct{}),
	}
}

// Push implements core.Sink.
func (s *wsSink) Push(ev core.Event) error {
	return s.enqueue(outboundFromEvent(ev))
}

// Close implements core.Sink.
func (s *wsSink) Close(reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *wsSink) pushError(e *proto.Error) error {
	return s.enqueue(proto.Outbound{Type: proto.OutboundTypeError, Error: e})
}

func (s *wsSink) enqueue(frame proto.Outbound) error {
	select {
	case <-s.done:
		return core.ErrConnectionClosed
	default:
	}
	select {
	case s.out <- frame:
		return nil
	default:
		return core.ErrBackpressure
	}
}

// drain hands every frame already queued to write without blocking. It stops
// at the first write error.
func (s *wsSink) drain(write func(proto.Outbound) error) error {
	for {
		select {
		case frame := <-s.out:
			if err := write(frame); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (s *wsSink) closeReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}
