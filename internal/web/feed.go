package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"airwatch/internal/tracker"
)

const (
	// feedBuffer is the number of frames queued per subscriber. A subscriber
	// that falls further behind is disconnected.
	feedBuffer = 64
	// feedWriteTimeout bounds one frame write.
	feedWriteTimeout = 10 * time.Second
)

var (
	errFeedClosed = errors.New("feed closed")
	errTooSlow    = errors.New("subscriber too slow")
)

// feedFrame is one websocket message. The first frame a subscriber gets is
// a snapshot carrying every device; events follow in order. Seq increases by
// one per frame published, so a gap means frames were lost.
type feedFrame struct {
	Type    string                `json:"type"`
	Seq     uint64                `json:"seq"`
	Devices []tracker.DeviceState `json:"devices,omitempty"`
	Event   *tracker.Event        `json:"event,omitempty"`
}

const frameSnapshot = "snapshot"

// feed streams tracker events to websocket subscribers.
type feed struct {
	view *tracker.View

	mu     sync.Mutex
	seq    uint64
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	frames chan []byte
	done   chan struct{}
	err    error // set before done is closed
}

func newFeed(view *tracker.View) *feed {
	return &feed{view: view, subs: make(map[*subscriber]struct{})}
}

// subscribe registers a subscriber and returns it with its snapshot frame.
// Both happen under the publish lock, so no event falls between the
// snapshot and the stream. An event may repeat state the snapshot already
// holds.
func (f *feed) subscribe() (*subscriber, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, nil, errFeedClosed
	}
	snap, err := json.Marshal(feedFrame{Type: frameSnapshot, Seq: f.seq, Devices: f.view.List()})
	if err != nil {
		return nil, nil, err
	}
	sub := &subscriber{frames: make(chan []byte, feedBuffer), done: make(chan struct{})}
	f.subs[sub] = struct{}{}
	return sub, snap, nil
}

func (f *feed) unsubscribe(sub *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropLocked(sub, nil)
}

// dropLocked removes sub and wakes it with err.
func (f *feed) dropLocked(sub *subscriber, err error) {
	if _, ok := f.subs[sub]; !ok {
		return
	}
	delete(f.subs, sub)
	sub.err = err
	close(sub.done)
}

// publish runs on the tracker goroutine and never blocks on a subscriber.
func (f *feed) publish(ev tracker.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.seq++
	frame, err := json.Marshal(feedFrame{Type: ev.Type, Seq: f.seq, Event: &ev})
	if err != nil {
		return
	}
	for sub := range f.subs {
		select {
		case sub.frames <- frame:
		default:
			f.dropLocked(sub, errTooSlow)
		}
	}
}

func (f *feed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// close disconnects every subscriber. Later subscribes fail.
func (f *feed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for sub := range f.subs {
		f.dropLocked(sub, errFeedClosed)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if len(s.allowedOrigins) > 0 {
		opts.OriginPatterns = s.allowedOrigins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Warn("ws accept", "err", err)
		return
	}

	sub, snap, err := s.feed.subscribe()
	if err != nil {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.feed.unsubscribe(sub)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The feed is one-way. CloseRead fails the connection on any client data
	// frame and cancels ctx when the peer goes away.
	ctx := conn.CloseRead(context.Background())

	if err := writeFrame(ctx, conn, snap); err != nil {
		return
	}
	for {
		select {
		case frame := <-sub.frames:
			if err := writeFrame(ctx, conn, frame); err != nil {
				return
			}
		case <-sub.done:
			switch sub.err {
			case errTooSlow:
				s.logger.Warn("ws subscriber dropped", "err", sub.err)
				conn.Close(websocket.StatusPolicyViolation, sub.err.Error())
			default:
				conn.Close(websocket.StatusGoingAway, "server shutting down")
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, frame []byte) error {
	ctx, cancel := context.WithTimeout(ctx, feedWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, frame)
}
