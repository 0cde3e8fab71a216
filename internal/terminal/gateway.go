// Package terminal bridges browser terminals and multiplexer panes. Each
// websocket connection runs one `tmux attach` inside a PTY sized to the
// client; bytes flow both directions until either side closes. The pane
// itself survives any disconnect — reconnecting is just a fresh stream to
// the same pane name.
package terminal

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// validPaneName rejects empty names and control characters. Shell injection
// is not a concern: the name travels as a direct exec argument.
var validPaneName = regexp.MustCompile(`^[^\x00-\x1f\x7f]+$`)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The server binds loopback; cross-origin browsers are the UI's
	// problem, not an authentication boundary here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientHello is the first frame a client sends.
type clientHello struct {
	PaneName string `json:"pane_name"`
	Cwd      string `json:"cwd"`
	Cols     int    `json:"cols"`
	Rows     int    `json:"rows"`
}

// controlMessage is any later JSON text frame from the client. Binary
// frames are raw terminal input.
type controlMessage struct {
	Type string `json:"type"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

// AttachPreparer resolves a pane name to an attach argv, creating the pane
// (and starting its agent command) on first attach. Implemented by the
// session manager.
type AttachPreparer interface {
	PrepareAttach(ctx context.Context, paneName string) ([]string, error)
}

// Gateway serves the /terminal endpoint.
type Gateway struct {
	panes AttachPreparer
}

// NewGateway creates a Gateway over an attach preparer.
func NewGateway(panes AttachPreparer) *Gateway {
	return &Gateway{panes: panes}
}

// ServeHTTP upgrades the connection and runs the bridge until either side
// closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("terminal upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	var hello clientHello
	if err := conn.ReadJSON(&hello); err != nil {
		slog.Warn("terminal hello failed", "err", err)
		return
	}
	if !validPaneName.MatchString(hello.PaneName) || len(hello.PaneName) > 256 {
		writeClose(conn, "invalid pane name")
		return
	}
	if hello.Cols <= 0 {
		hello.Cols = 80
	}
	if hello.Rows <= 0 {
		hello.Rows = 24
	}

	argv, err := g.panes.PrepareAttach(r.Context(), hello.PaneName)
	if err != nil {
		writeClose(conn, "attach failed: "+err.Error())
		return
	}

	p, err := startAttach(argv, hello.Cols, hello.Rows)
	if err != nil {
		writeClose(conn, "pty start failed: "+err.Error())
		return
	}
	// Closing the PTY delivers SIGHUP to the attach client; the
	// multiplexer session is unaffected.
	defer p.Close()

	slog.Info("terminal attached", "pane", hello.PaneName,
		"cols", hello.Cols, "rows", hello.Rows)
	g.bridge(conn, p, hello.PaneName)
	slog.Info("terminal detached", "pane", hello.PaneName)
}

// bridge copies bytes both ways until either side closes. Bytes are
// ordered per connection; nothing is promised across reconnects — the
// multiplexer scrollback covers recovery.
func (g *Gateway) bridge(conn *websocket.Conn, p *attachPTY, pane string) {
	var writeMu sync.Mutex
	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }

	// PTY → websocket.
	go func() {
		defer finish()
		buf := make([]byte, 32*1024)
		for {
			n, err := p.Read(buf)
			if n > 0 {
				writeMu.Lock()
				werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n])
				writeMu.Unlock()
				if werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	// Websocket → PTY.
	go func() {
		defer finish()
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Warn("terminal read error", "pane", pane, "err", err)
				}
				return
			}
			switch msgType {
			case websocket.BinaryMessage:
				if _, err := p.Write(data); err != nil {
					return
				}
			case websocket.TextMessage:
				var ctrl controlMessage
				if err := json.Unmarshal(data, &ctrl); err != nil {
					continue
				}
				if ctrl.Type == "resize" && ctrl.Cols > 0 && ctrl.Rows > 0 {
					_ = p.Resize(ctrl.Cols, ctrl.Rows)
				}
			}
		}
	}()

	<-done
}

func writeClose(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
}

// filterMuxEnv strips the multiplexer's own variables so a nested attach
// does not refuse to run.
func filterMuxEnv(env []string) []string {
	out := env[:0:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, "TMUX=") || strings.HasPrefix(kv, "TMUX_PANE=") {
			continue
		}
		out = append(out, kv)
	}
	return append(out, "TERM=xterm-256color")
}
