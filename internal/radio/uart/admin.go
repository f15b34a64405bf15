package uart

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/pulse.replay/internal/bitstream"
)

const sendFramePage = `<!DOCTYPE html>
<html>
<head><title>send frame</title></head>
<body>
<h1>Send raw frame</h1>
<form id="send" method="POST" action="/debug/send-frame-api">
  <input name="frame" size="80" placeholder="aa aa 55 a1 21 ...">
  <button type="submit">Send</button>
</form>
<h2>Module output</h2>
<pre id="tail"></pre>
<script>
const tail = document.getElementById("tail");
new EventSource("/debug/tail").onmessage = (e) => { tail.textContent += e.data + "\n"; };
</script>
</body>
</html>
`

// AttachAdminRoutes mounts debugging endpoints under /debug/: a page to send
// a hex frame to the module, the API behind it and an SSE tail of module
// output. tsweb restricts them to loopback and tailnet peers.
func (t *Transport[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("send-frame", "send a hex frame to the radio module", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, sendFramePage)
	})

	debug.HandleSilentFunc("send-frame-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		raw := strings.TrimSpace(r.FormValue("frame"))
		if raw == "" {
			http.Error(w, "Missing frame", http.StatusBadRequest)
			return
		}
		frame, err := bitstream.ParseHex(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid frame: %v", err), http.StatusBadRequest)
			return
		}
		if err := t.Send(frame); err != nil {
			http.Error(w, "Failed to write frame", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "Wrote %d byte frame to serial port", len(frame))
	})

	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := t.Subscribe()
		defer t.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
