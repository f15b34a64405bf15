// Package uart sends framed payloads to a UART-attached packet radio module
// and fans the module's own output lines out to subscribers.
package uart

import (
	"bufio"
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/pulse.replay/internal/radio"
)

// ErrWriteFailed is returned when the port accepted fewer bytes than the
// frame holds.
var ErrWriteFailed = errors.New("failed to write to serial port")

// Transport is a packet transport backed by a serial port.
type Transport[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	sendMu       sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// NewTransport wraps an open serial port.
func NewTransport[T SerialPorter](port T) *Transport[T] {
	return &Transport[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// Send writes payload to the module in a single write. The module treats the
// bytes it receives between UART idle gaps as one packet, so the write must
// not be split.
func (t *Transport[T]) Send(payload []byte) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.closingMu.Lock()
	closing := t.closing
	t.closingMu.Unlock()
	if closing {
		return radio.Fail("send", errors.New("serial port closed"))
	}

	n, err := t.port.Write(payload)
	if err != nil {
		return radio.Fail("send", err)
	}
	if n != len(payload) {
		return radio.Fail("send", ErrWriteFailed)
	}
	return nil
}

// SetDigitalOutput is not available over the UART path.
func (t *Transport[T]) SetDigitalOutput(bool) error {
	return radio.Fail("key", radio.ErrUnsupported)
}

// Capabilities reports a packet-only transport. The module queues frames in
// its own buffer, so back-to-back sends are accepted.
func (t *Transport[T]) Capabilities() radio.Capabilities {
	return radio.Capabilities{PacketSend: true, BurstSend: true}
}

// subscriberBuffer absorbs the short bursts of status lines a module prints
// after each frame.
const subscriberBuffer = 16

// Subscribe creates a channel receiving lines the module prints. After
// Close the returned channel is already closed.
func (t *Transport[T]) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, subscriberBuffer)

	t.closingMu.Lock()
	defer t.closingMu.Unlock()
	if t.closing {
		// Close has already drained the subscribers
		close(ch)
		return id, ch
	}
	t.subscriberMu.Lock()
	defer t.subscriberMu.Unlock()
	t.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (t *Transport[T]) Unsubscribe(id string) {
	t.subscriberMu.Lock()
	defer t.subscriberMu.Unlock()
	if ch, ok := t.subscribers[id]; ok {
		close(ch)
		delete(t.subscribers, id)
	}
}

// Monitor reads lines from the port and hands them to subscribers until ctx
// is done, the port reaches EOF or the transport is closed.
func (t *Transport[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(t.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
					return nil
				}
			}
			t.closingMu.Lock()
			if t.closing {
				t.closingMu.Unlock()
				return nil
			}
			t.closingMu.Unlock()

			t.subscriberMu.Lock()
			for _, ch := range t.subscribers {
				select {
				case ch <- line:
				default:
					// slow subscriber, drop rather than stall the port
				}
			}
			t.subscriberMu.Unlock()
		}
	}
}

// Close closes every subscriber channel and the port.
func (t *Transport[T]) Close() error {
	t.closingMu.Lock()
	if t.closing {
		t.closingMu.Unlock()
		return nil
	}
	t.closing = true
	t.closingMu.Unlock()

	t.subscriberMu.Lock()
	for id, ch := range t.subscribers {
		close(ch)
		delete(t.subscribers, id)
	}
	t.subscriberMu.Unlock()
	return radio.Fail("close", t.port.Close())
}

var _ radio.Transport = (*Transport[SerialPorter])(nil)
