package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mdelaney/catsync/internal/events"
)

// Signal is a connectivity or push notification from the service.
type Signal struct {
	// Online transitions. The first successful connect emits
	// Online=true; a dropped socket emits Online=false.
	Online bool `json:"online"`

	// Target is set when the service pushes a remote data change.
	Target string `json:"target,omitempty"`
}

// ConnectivityWatcher maintains a websocket to the service's update
// channel and publishes online/offline transitions plus push-update
// messages. A service that cannot be reached degrades to offline
// silently; the watcher keeps redialing with capped backoff.
type ConnectivityWatcher struct {
	url    string
	token  string
	logger *events.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	signals chan Signal
	done    chan struct{}

	dialTimeout time.Duration
	redialBase  time.Duration
	redialCap   time.Duration
}

// NewConnectivityWatcher creates a watcher for the given base URL.
func NewConnectivityWatcher(baseURL, token string, logger *events.Logger) *ConnectivityWatcher {
	wsURL := baseURL
	if len(wsURL) > 4 && wsURL[:4] == "http" {
		wsURL = "ws" + wsURL[4:]
	}

	return &ConnectivityWatcher{
		url:         wsURL + "/v1/updates",
		token:       token,
		logger:      logger.WithField("component", "connectivity_watcher"),
		signals:     make(chan Signal, 32),
		done:        make(chan struct{}),
		dialTimeout: 10 * time.Second,
		redialBase:  time.Second,
		redialCap:   time.Minute,
	}
}

// Run dials and re-dials until the context ends or Close is called.
func (w *ConnectivityWatcher) Run(ctx context.Context) {
	delay := w.redialBase

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			w.logger.WithError(err).Debug("Connectivity dial failed")

			select {
			case <-ctx.Done():
				return
			case <-w.done:
				return
			case <-time.After(delay):
			}

			delay *= 2
			if delay > w.redialCap {
				delay = w.redialCap
			}
			continue
		}

		delay = w.redialBase
		w.emit(Signal{Online: true})
		w.readLoop()
		w.emit(Signal{Online: false})
	}
}

// Signals returns the signal stream.
func (w *ConnectivityWatcher) Signals() <-chan Signal {
	return w.signals
}

// Close stops the watcher.
func (w *ConnectivityWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

func (w *ConnectivityWatcher) connect(ctx context.Context) error {
	headers := http.Header{}
	if w.token != "" {
		headers.Set("Authorization", "Bearer "+w.token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: w.dialTimeout}

	conn, resp, err := dialer.DialContext(ctx, w.url, headers)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return err
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	w.conn = conn
	w.mu.Unlock()

	w.logger.Info("Update channel connected")
	return nil
}

func (w *ConnectivityWatcher) readLoop() {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		return
	}

	for {
		var msg struct {
			Type   string `json:"type"`
			Target string `json:"target"`
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			w.logger.WithError(err).Debug("Update channel closed")
			break
		}

		if err := json.Unmarshal(data, &msg); err != nil {
			w.logger.WithError(err).Warn("Malformed push message")
			continue
		}

		if msg.Type == "change" {
			w.emit(Signal{Online: true, Target: msg.Target})
		}
	}

	w.mu.Lock()
	w.conn = nil
	w.mu.Unlock()
	_ = conn.Close()
}

func (w *ConnectivityWatcher) emit(sig Signal) {
	select {
	case w.signals <- sig:
	default:
		// Drainer only needs the latest transition; dropping a
		// stale signal is harmless.
	}
}
