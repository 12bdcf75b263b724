package stream

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/mengeric/jobsync-client-go/backoff"
	"github.com/mengeric/jobsync-client-go/jobs"
)

// staticTokens 测试用令牌桩。
type staticTokens struct{}

func (staticTokens) AccessToken(ctx context.Context) (string, error) { return "tok", nil }
func (staticTokens) Refresh(ctx context.Context) (string, error)     { return "tok2", nil }

// fakeConn 用通道驱动的假连接。
type fakeConn struct {
	ch     chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{ch: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) push(raw string) { c.ch <- []byte(raw) }

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case <-c.closed:
		return 0, nil, net.ErrClosed
	case b := <-c.ch:
		return 1, b, nil
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func intp(v int) *int { return &v }

func newTestManager(board *jobs.Board, conn *fakeConn, watchdog time.Duration) (*Manager, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(ctx, board, staticTokens{}, Options{
		WSBase:   "ws://test",
		Watchdog: watchdog,
		Policy:   backoff.Policy{Base: 10 * time.Millisecond, MaxDelay: 20 * time.Millisecond, ServerAttempts: 3, Warmup: time.Second},
		Dial: func(ctx context.Context, rawURL string) (Conn, error) {
			return conn, nil
		},
	})
	return m, cancel
}

func TestManagerHappyPath(t *testing.T) {
	ctx := context.Background()

	Convey("progress events flow into the board and complete closes the channel", t, func() {
		board := jobs.NewBoard(nil, time.Minute)
		So(board.Upsert(ctx, jobs.Patch{ID: "J1", Status: jobs.StatusPending}), ShouldBeNil)

		conn := newFakeConn()
		m, cancel := newTestManager(board, conn, 5*time.Second)
		defer cancel()

		m.Open("J1")
		So(m.Streaming("J1"), ShouldBeTrue)

		conn.push(`{"event":"connected","data":{"message":"stream ready"}}`)
		conn.push(`{"event":"progress","data":{"status":"active","progress":25,"step":{"current":1,"total":4}}}`)
		conn.push(`{"event":"progress","data":{"status":"active","progress":50,"step":{"current":2,"total":4}}}`)
		conn.push(`{"event":"progress","data":{"status":"active","progress":75,"step":{"current":3,"total":4}}}`)
		conn.push(`{"event":"complete","data":{"progress":100,"step":{"current":4,"total":4},"lead_id":"L1"}}`)

		time.Sleep(150 * time.Millisecond)
		rec, ok := board.Get(ctx, "J1")
		So(ok, ShouldBeTrue)
		So(rec.Status, ShouldEqual, jobs.StatusComplete)
		So(rec.Progress, ShouldEqual, 100)
		So(rec.LeadID, ShouldEqual, "L1")
		So(m.Streaming("J1"), ShouldBeFalse)
	})

	Convey("opening a channel twice for the same job is a no-op", t, func() {
		board := jobs.NewBoard(nil, time.Minute)
		So(board.Upsert(ctx, jobs.Patch{ID: "J1", Status: jobs.StatusActive}), ShouldBeNil)

		conn := newFakeConn()
		m, cancel := newTestManager(board, conn, 5*time.Second)
		defer cancel()

		m.Open("J1")
		m.Open("J1")
		time.Sleep(30 * time.Millisecond)
		So(m.Streaming("J1"), ShouldBeTrue)
		m.CloseAll()
		So(m.Streaming("J1"), ShouldBeFalse)
	})
}

func TestManagerWatchdog(t *testing.T) {
	ctx := context.Background()

	Convey("a silent stream fails the job with a timeout after the watchdog window", t, func() {
		board := jobs.NewBoard(nil, time.Minute)
		So(board.Upsert(ctx, jobs.Patch{ID: "J1", Status: jobs.StatusActive, Progress: intp(40)}), ShouldBeNil)

		conn := newFakeConn()
		m, cancel := newTestManager(board, conn, 120*time.Millisecond)
		defer cancel()

		m.Open("J1")
		time.Sleep(300 * time.Millisecond)

		rec, _ := board.Get(ctx, "J1")
		So(rec.Status, ShouldEqual, jobs.StatusFailed)
		So(rec.ErrorMessage, ShouldContainSubstring, "timed out")
		So(m.Streaming("J1"), ShouldBeFalse)

		// 通道已关闭：迟到的终态事件不再被接受
		conn.push(`{"event":"complete","data":{"progress":100,"step":{"current":4,"total":4},"lead_id":"L1"}}`)
		time.Sleep(50 * time.Millisecond)
		rec, _ = board.Get(ctx, "J1")
		So(rec.Status, ShouldEqual, jobs.StatusFailed)
	})

	Convey("a terminal event before the window leaves the job untouched", t, func() {
		board := jobs.NewBoard(nil, time.Minute)
		So(board.Upsert(ctx, jobs.Patch{ID: "J1", Status: jobs.StatusActive}), ShouldBeNil)

		conn := newFakeConn()
		m, cancel := newTestManager(board, conn, 150*time.Millisecond)
		defer cancel()

		m.Open("J1")
		conn.push(`{"event":"cancelled","data":{"progress":10,"step":{"current":1,"total":4}}}`)
		time.Sleep(300 * time.Millisecond)

		rec, _ := board.Get(ctx, "J1")
		So(rec.Status, ShouldEqual, jobs.StatusCancelled)
		So(rec.ErrorMessage, ShouldEqual, "")
	})
}

func TestManagerMalformedPayload(t *testing.T) {
	ctx := context.Background()

	Convey("a malformed payload fails the job immediately", t, func() {
		board := jobs.NewBoard(nil, time.Minute)
		So(board.Upsert(ctx, jobs.Patch{ID: "J1", Status: jobs.StatusActive}), ShouldBeNil)

		conn := newFakeConn()
		m, cancel := newTestManager(board, conn, 5*time.Second)
		defer cancel()

		m.Open("J1")
		conn.push(`{"event":"progress","data":{"status":"exploded","progress":42}}`)

		time.Sleep(100 * time.Millisecond)
		rec, _ := board.Get(ctx, "J1")
		So(rec.Status, ShouldEqual, jobs.StatusFailed)
		So(rec.ErrorMessage, ShouldContainSubstring, "decode")
		So(m.Streaming("J1"), ShouldBeFalse)
	})
}

func TestManagerTeardown(t *testing.T) {
	ctx := context.Background()

	Convey("tearing down the tracking context drops late events", t, func() {
		board := jobs.NewBoard(nil, time.Minute)
		So(board.Upsert(ctx, jobs.Patch{ID: "J1", Status: jobs.StatusActive, Progress: intp(30)}), ShouldBeNil)

		conn := newFakeConn()
		m, cancel := newTestManager(board, conn, 5*time.Second)

		m.Open("J1")
		time.Sleep(30 * time.Millisecond)
		cancel()
		m.CloseAll()
		time.Sleep(30 * time.Millisecond)

		conn.push(`{"event":"progress","data":{"status":"active","progress":90,"step":{"current":3,"total":4}}}`)
		time.Sleep(50 * time.Millisecond)
		rec, _ := board.Get(ctx, "J1")
		So(rec.Progress, ShouldEqual, 30) // 拆除后的迟到事件被丢弃
	})
}
