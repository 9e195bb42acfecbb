package eventstream

import (
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tiroq/fmcamera/testutil"
)

const readTimeout = 2 * time.Second

func newServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return srv
}

// connect dials the hub and consumes the hello event
func connect(t *testing.T, srv *httptest.Server) (*testutil.WSClient, Event) {
	t.Helper()
	c := testutil.DialWS(t, srv.URL)
	var hello Event
	c.ReadJSON(&hello, readTimeout)
	if hello.Type != TypeHello {
		t.Fatalf("expected hello first, got %q", hello.Type)
	}
	return c, hello
}

func TestHelloCarriesStatus(t *testing.T) {
	h := NewHub()
	h.SetStatus(func() interface{} { return map[string]bool{"recording": true} })
	srv := newServer(t, h)

	_, hello := connect(t, srv)
	status, ok := hello.Status.(map[string]interface{})
	if !ok || status["recording"] != true {
		t.Fatalf("unexpected status %#v", hello.Status)
	}
	if h.Clients() != 1 {
		t.Errorf("clients: got %d", h.Clients())
	}
}

func TestRecordingEvents(t *testing.T) {
	h := NewHub()
	srv := newServer(t, h)
	a, _ := connect(t, srv)
	b, _ := connect(t, srv)

	h.RecordingStarted(nil)
	h.RecordingFinished("/tmp/file.mp4", nil)
	h.RecordingFinished("", errors.New("disk full"))

	for _, c := range []*testutil.WSClient{a, b} {
		var ev Event
		c.ReadJSON(&ev, readTimeout)
		testutil.AssertEqual(t, TypeRecordingStarted, ev.Type, "first event")
		testutil.AssertEqual(t, "", ev.Error, "started error")

		c.ReadJSON(&ev, readTimeout)
		testutil.AssertEqual(t, TypeRecordingFinished, ev.Type, "second event")
		testutil.AssertEqual(t, "/tmp/file.mp4", ev.Path, "finished path")

		ev = Event{}
		c.ReadJSON(&ev, readTimeout)
		testutil.AssertEqual(t, "", ev.Path, "failed save path")
		testutil.AssertEqual(t, "disk full", ev.Error, "failed save error")
	}
}

func TestPhotoEventFollowedByData(t *testing.T) {
	h := NewHub()
	srv := newServer(t, h)
	c, _ := connect(t, srv)

	data := testutil.JPEGFixture(20, 10)
	h.PhotoCaptured(image.NewRGBA(image.Rect(0, 0, 20, 10)), data)

	var ev Event
	c.ReadJSON(&ev, readTimeout)
	testutil.AssertEqual(t, TypePhotoCaptured, ev.Type, "event type")
	testutil.AssertEqual(t, 20, ev.Width, "width")
	testutil.AssertEqual(t, 10, ev.Height, "height")
	testutil.AssertEqual(t, len(data), ev.Bytes, "bytes")

	frameType, got, err := SplitFrame(c.ReadBinary(readTimeout))
	testutil.AssertNoError(t, err, "split photo frame")
	testutil.AssertEqual(t, FramePhoto, frameType, "photo frame type")
	testutil.AssertEqual(t, len(data), len(got), "photo payload")
	testutil.AssertJPEG(t, got, "photo payload")
}

func TestPreviewAndPhotoFramesDistinct(t *testing.T) {
	h := NewHub()
	h.SetPreviewInterval(0)
	srv := newServer(t, h)
	c, _ := connect(t, srv)

	photo := testutil.JPEGFixture(8, 8)
	h.PreviewFrame([]byte{0xFF, 0xD8, 0xFF, 0xD9})
	h.PhotoCaptured(nil, photo)
	h.PreviewFrame([]byte{0xFF, 0xD8, 0xFF, 0xD9})

	var types []byte
	for len(types) < 3 {
		kind, msg := c.ReadMessage(readTimeout)
		if kind != websocket.BinaryMessage {
			continue // the photo_captured event
		}
		frameType, _, err := SplitFrame(msg)
		testutil.AssertNoError(t, err, "split frame")
		types = append(types, frameType)
	}
	testutil.AssertEqual(t, string([]byte{FramePreview, FramePhoto, FramePreview}), string(types), "frame types")
}

func TestSplitFrame(t *testing.T) {
	tests := []struct {
		name    string
		msg     []byte
		want    byte
		wantErr bool
	}{
		{"preview", []byte{FramePreview, 0xFF, 0xD8}, FramePreview, false},
		{"photo", []byte{FramePhoto, 0xFF, 0xD8}, FramePhoto, false},
		{"empty", nil, 0, true},
		{"untagged jpeg", []byte{0xFF, 0xD8}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, data, err := SplitFrame(tt.msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("frame type %q, want %q", got, tt.want)
			}
			if err == nil && len(data) != len(tt.msg)-1 {
				t.Errorf("payload length %d", len(data))
			}
		})
	}
}

func TestPreviewThrottled(t *testing.T) {
	h := NewHub()
	now := time.Unix(1000, 0)
	h.now = func() time.Time { return now }
	srv := newServer(t, h)
	c, _ := connect(t, srv)

	h.PreviewFrame([]byte{1})
	h.PreviewFrame([]byte{2}) // same instant, throttled
	now = now.Add(DefaultPreviewInterval)
	h.PreviewFrame([]byte{3})

	testutil.AssertEqual(t, byte(1), c.ReadBinary(readTimeout)[1], "first frame")
	testutil.AssertEqual(t, byte(3), c.ReadBinary(readTimeout)[1], "frame after interval")
}

func TestCommands(t *testing.T) {
	h := NewHub()
	var got []string
	h.OnCommand(func(cmd string) error {
		got = append(got, cmd)
		if cmd == "bogus" {
			return errors.New("unknown command")
		}
		return nil
	})
	srv := newServer(t, h)
	c, _ := connect(t, srv)

	c.WriteJSON(CommandMessage{Command: "photo"})
	var res Event
	c.ReadJSON(&res, readTimeout)
	testutil.AssertEqual(t, TypeCommandResult, res.Type, "result type")
	testutil.AssertEqual(t, "photo", res.Command, "command echoed")
	testutil.AssertEqual(t, "", res.Error, "no error")

	c.WriteJSON(CommandMessage{Command: "bogus"})
	res = Event{}
	c.ReadJSON(&res, readTimeout)
	testutil.AssertEqual(t, "unknown command", res.Error, "handler error")
	testutil.AssertEqual(t, 2, len(got), "handled commands")
}

func TestCommandsRejectedWithoutHandler(t *testing.T) {
	srv := newServer(t, NewHub())
	c, _ := connect(t, srv)

	c.WriteJSON(CommandMessage{Command: "start"})
	var res Event
	c.ReadJSON(&res, readTimeout)
	testutil.AssertStringContains(t, res.Error, "not accepted", "rejection")
}

func TestSlowClientDropped(t *testing.T) {
	h := NewHub()
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conns <- conn
	}))
	defer srv.Close()

	peer := testutil.DialWS(t, srv.URL)
	serverConn := <-conns

	// registered without a write pump, so nothing drains its buffer
	c := &client{conn: serverConn, send: make(chan message, 1), done: make(chan struct{})}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.Publish(Event{Type: TypeRecordingStarted})
	testutil.AssertEqual(t, 1, h.Clients(), "first message fits")
	h.Publish(Event{Type: TypeRecordingFinished})
	testutil.AssertEqual(t, 0, h.Clients(), "slow client dropped")
	peer.ExpectClosed(readTimeout)
}

func TestCloseDisconnectsClients(t *testing.T) {
	h := NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()
	c, _ := connect(t, srv)

	h.Close()
	c.ExpectClosed(readTimeout)
	testutil.AssertEqual(t, 0, h.Clients(), "clients after close")
}

func TestRejectsPlainHTTP(t *testing.T) {
	srv := newServer(t, NewHub())
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d", resp.StatusCode)
	}
	if !strings.HasPrefix(srv.URL, "http://") {
		t.Errorf("unexpected server URL %s", srv.URL)
	}
}
