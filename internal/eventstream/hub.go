// Package eventstream publishes capture lifecycle events and preview frames
// to websocket clients. JSON text messages carry events. Binary messages
// carry a JPEG behind a one-byte frame type: FramePreview or FramePhoto.
// Clients may send commands back.
package eventstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tiroq/fmcamera/internal/diaglog"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// DefaultSendBuffer is how many messages a client may lag behind
	DefaultSendBuffer = 32
	// DefaultPreviewInterval limits preview frames to 10 per second
	DefaultPreviewInterval = 100 * time.Millisecond
)

// Event types
const (
	TypeHello             = "hello"
	TypeRecordingStarted  = "recording_started"
	TypeRecordingFinished = "recording_finished"
	TypePhotoCaptured     = "photo_captured"
	TypeCommandResult     = "command_result"
)

// Binary frame types, the first byte of every binary message
const (
	FramePreview byte = 'P'
	FramePhoto   byte = 'J'
)

// Event is one JSON message sent to clients
type Event struct {
	Type    string      `json:"type"`
	Time    time.Time   `json:"time"`
	Path    string      `json:"path,omitempty"`
	Error   string      `json:"error,omitempty"`
	Width   int         `json:"width,omitempty"`
	Height  int         `json:"height,omitempty"`
	Bytes   int         `json:"bytes,omitempty"`
	Command string      `json:"command,omitempty"`
	Status  interface{} `json:"status,omitempty"`
}

// CommandMessage is what clients send to control the camera
type CommandMessage struct {
	Command string `json:"command"`
}

// CommandHandler executes a client command
type CommandHandler func(cmd string) error

type message struct {
	kind int
	data []byte
}

// binaryFrame copies data behind the frame type byte
func binaryFrame(frameType byte, data []byte) message {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, frameType)
	return message{websocket.BinaryMessage, append(buf, data...)}
}

// SplitFrame separates a binary message into its frame type and JPEG
func SplitFrame(msg []byte) (frameType byte, jpeg []byte, err error) {
	if len(msg) == 0 {
		return 0, nil, errors.New("empty binary frame")
	}
	switch msg[0] {
	case FramePreview, FramePhoto:
		return msg[0], msg[1:], nil
	}
	return 0, nil, fmt.Errorf("unknown frame type %q", msg[0])
}

type client struct {
	conn *websocket.Conn
	send chan message
	once sync.Once
	done chan struct{}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Hub fans events out to every connected client. A client whose send
// buffer is full is dropped.
type Hub struct {
	upgrader        websocket.Upgrader
	sendBuffer      int
	previewInterval time.Duration

	logger *diaglog.Logger
	log    *log.Logger

	mu          sync.Mutex
	clients     map[*client]struct{}
	onCommand   CommandHandler
	status      func() interface{}
	lastPreview time.Time
	now         func() time.Time
}

// NewHub creates a hub with no clients
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sendBuffer:      DefaultSendBuffer,
		previewInterval: DefaultPreviewInterval,
		log:             log.New(io.Discard, "", 0),
		clients:         make(map[*client]struct{}),
		now:             time.Now,
	}
}

// SetLogger injects the diagnostic logger
func (h *Hub) SetLogger(l *diaglog.Logger) {
	h.logger = l
}

// SetLog sets the human-readable logger
func (h *Hub) SetLog(l *log.Logger) {
	if l != nil {
		h.log = l
	}
}

// SetSendBuffer changes the per-client backlog for new clients
func (h *Hub) SetSendBuffer(n int) {
	if n > 0 {
		h.sendBuffer = n
	}
}

// SetPreviewInterval sets the minimum spacing of preview frames. Zero
// forwards every frame.
func (h *Hub) SetPreviewInterval(d time.Duration) {
	h.mu.Lock()
	h.previewInterval = d
	h.mu.Unlock()
}

// OnCommand registers the handler for client commands
func (h *Hub) OnCommand(fn CommandHandler) {
	h.mu.Lock()
	h.onCommand = fn
	h.mu.Unlock()
}

// SetStatus registers the snapshot sent in the hello event
func (h *Hub) SetStatus(fn func() interface{}) {
	h.mu.Lock()
	h.status = fn
	h.mu.Unlock()
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and registers the client
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Printf("events: upgrade: %v", err)
		return
	}
	c := &client{
		conn: conn,
		send: make(chan message, h.sendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	status := h.status
	h.mu.Unlock()
	hello := Event{Type: TypeHello, Time: h.now()}
	if status != nil {
		hello.Status = status()
	}
	if data, err := json.Marshal(hello); err == nil {
		c.send <- message{websocket.TextMessage, data}
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Event(diaglog.ComponentEvents, diaglog.EventClientConnect, map[string]interface{}{
		"remote":  r.RemoteAddr,
		"clients": n,
	})

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.drop(c, "write")
	}()
	for {
		select {
		case <-c.done:
			return
		case m := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(m.kind, m.data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer h.drop(c, "read")
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var cmd CommandMessage
		if err := c.conn.ReadJSON(&cmd); err != nil {
			var syntax *json.SyntaxError
			if errors.As(err, &syntax) {
				continue
			}
			return
		}
		h.handleCommand(c, cmd.Command)
	}
}

func (h *Hub) handleCommand(c *client, cmd string) {
	h.mu.Lock()
	fn := h.onCommand
	h.mu.Unlock()

	res := Event{Type: TypeCommandResult, Time: h.now(), Command: cmd}
	switch {
	case fn == nil:
		res.Error = "commands are not accepted"
	default:
		if err := fn(cmd); err != nil {
			res.Error = err.Error()
		}
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	h.enqueue(c, message{websocket.TextMessage, data})
}

// drop unregisters c and closes its connection
func (h *Hub) drop(c *client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.close()
	if ok {
		h.logger.Event(diaglog.ComponentEvents, diaglog.EventClientDrop, map[string]interface{}{
			"reason":  reason,
			"clients": n,
		})
	}
}

// enqueue hands m to c, dropping the client when it lags too far
func (h *Hub) enqueue(c *client, m message) {
	select {
	case <-c.done:
	case c.send <- m:
	default:
		h.log.Println("events: dropping slow client")
		h.drop(c, "slow")
	}
}

func (h *Hub) broadcast(m message) {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.enqueue(c, m)
	}
}

// Publish sends ev to every client
func (h *Hub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = h.now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Printf("events: encode %s: %v", ev.Type, err)
		return
	}
	h.broadcast(message{websocket.TextMessage, data})
}

// RecordingStarted implements camera.VideoObserver
func (h *Hub) RecordingStarted(err error) {
	ev := Event{Type: TypeRecordingStarted}
	if err != nil {
		ev.Error = err.Error()
	}
	h.Publish(ev)
}

// RecordingFinished implements camera.VideoObserver
func (h *Hub) RecordingFinished(path string, err error) {
	ev := Event{Type: TypeRecordingFinished, Path: path}
	if err != nil {
		ev.Error = err.Error()
	}
	h.Publish(ev)
}

// PhotoCaptured implements camera.PhotoObserver. The photo itself follows
// the event as a FramePhoto binary message.
func (h *Hub) PhotoCaptured(img image.Image, data []byte) {
	ev := Event{Type: TypePhotoCaptured, Bytes: len(data)}
	if img != nil {
		ev.Width, ev.Height = img.Bounds().Dx(), img.Bounds().Dy()
	}
	h.Publish(ev)
	if len(data) > 0 {
		h.broadcast(binaryFrame(FramePhoto, data))
	}
}

// PreviewFrame implements platform.PreviewSink
func (h *Hub) PreviewFrame(frame []byte) {
	h.mu.Lock()
	now := h.now()
	if h.previewInterval > 0 && now.Sub(h.lastPreview) < h.previewInterval {
		h.mu.Unlock()
		return
	}
	h.lastPreview = now
	idle := len(h.clients) == 0
	h.mu.Unlock()
	if idle {
		return
	}
	h.broadcast(binaryFrame(FramePreview, frame))
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.drop(c, "shutdown")
	}
}
