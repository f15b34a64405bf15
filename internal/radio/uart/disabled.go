package uart

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/pulse.replay/internal/monitoring"
	"github.com/banshee-data/pulse.replay/internal/radio"
)

// Disabled is a no-op packet transport used for dry runs (--dry-run) when no
// module is attached. Sends are logged and counted but go nowhere. It tracks
// subscribers so their channels close deterministically on Unsubscribe or
// Close.
type Disabled struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	closing     bool
	sent        int
}

func NewDisabled() *Disabled {
	return &Disabled{
		subscribers: make(map[string]chan string),
	}
}

func (d *Disabled) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		// already closing: hand back a closed channel so readers don't block
		close(ch)
		return id, ch
	}
	d.subscribers[id] = ch
	return id, ch
}

func (d *Disabled) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

func (d *Disabled) Send(payload []byte) error {
	d.mu.Lock()
	d.sent++
	d.mu.Unlock()
	monitoring.Logf("serial disabled: dropping %d byte frame % x", len(payload), payload)
	return nil
}

// Sent reports how many frames were dropped.
func (d *Disabled) Sent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent
}

func (d *Disabled) SetDigitalOutput(bool) error {
	return radio.Fail("key", radio.ErrUnsupported)
}

func (d *Disabled) Capabilities() radio.Capabilities {
	return radio.Capabilities{PacketSend: true, BurstSend: true}
}

func (d *Disabled) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *Disabled) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}

func (d *Disabled) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/serial-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("serial disabled"))
	})
}

var _ radio.Transport = (*Disabled)(nil)
