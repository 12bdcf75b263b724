package jobsync

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/mock/gomock"

	"github.com/mengeric/jobsync-client-go/client"
	"github.com/mengeric/jobsync-client-go/jobs"
	"github.com/mengeric/jobsync-client-go/mocks"
	"github.com/mengeric/jobsync-client-go/stream"
)

// staticTokens 测试用令牌桩。
type staticTokens struct{}

func (staticTokens) AccessToken(ctx context.Context) (string, error) { return "tok", nil }
func (staticTokens) Refresh(ctx context.Context) (string, error)     { return "tok2", nil }

// fakeConn 通道驱动的假推流连接。
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

func testOptions() Options {
	return Options{
		ServerBase:   "http://s",
		Watchdog:     5 * time.Second,
		SlowEvery:    50 * time.Millisecond,
		FastEvery:    25 * time.Millisecond,
		AwaitEvery:   10 * time.Millisecond,
		AwaitMax:     100,
		DismissAfter: time.Minute,
	}
}

func TestTrackerEndToEnd(t *testing.T) {
	Convey("submit, stream to completion, refresh balance once", t, func() {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		api := mocks.NewMockServerAPI(ctrl)
		bal := mocks.NewMockBalanceAPI(ctrl)
		conn := newFakeConn()

		api.EXPECT().SubmitJob(gomock.Any(), "http://s", gomock.Any()).
			Return(client.SubmitJobResp{JobID: "J1", Status: "pending", ProgressURL: "/jobs/J1/progress"}, nil)
		api.EXPECT().ListActiveJobs(gomock.Any(), "http://s").
			Return(client.ActiveJobsResp{}, nil).AnyTimes()
		bal.EXPECT().FetchBalance(gomock.Any()).Return(nil).Times(1)

		trk := NewTracker(
			WithOptions(testOptions()),
			WithClientAPI(api),
			WithTokenProvider(staticTokens{}),
			WithBalanceAPI(bal),
			WithDial(func(ctx context.Context, rawURL string) (stream.Conn, error) {
				return conn, nil
			}),
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		trk.Start(ctx)
		defer trk.Stop()

		jobID, err := trk.Submit(ctx, client.SubmitJobReq{LeadID: "L1", Username: "alice", Kind: "profile_analysis"})
		So(err, ShouldBeNil)
		So(jobID, ShouldEqual, "J1")

		// 乐观记录已被服务端身份补全
		rec, ok := trk.Board().Get(ctx, "J1")
		So(ok, ShouldBeTrue)
		So(rec.Optimistic, ShouldBeFalse)
		So(rec.Username, ShouldEqual, "alice")

		conn.push(`{"event":"connected","data":{"message":"stream ready"}}`)
		conn.push(`{"event":"progress","data":{"status":"active","progress":25,"step":{"current":1,"total":4}}}`)
		conn.push(`{"event":"progress","data":{"status":"active","progress":50,"step":{"current":2,"total":4}}}`)
		conn.push(`{"event":"progress","data":{"status":"active","progress":75,"step":{"current":3,"total":4}}}`)
		conn.push(`{"event":"complete","data":{"progress":100,"step":{"current":4,"total":4},"lead_id":"L1"}}`)

		rec, err = trk.Await(ctx, "J1")
		So(err, ShouldBeNil)
		So(rec.Status, ShouldEqual, jobs.StatusComplete)
		So(rec.Progress, ShouldEqual, 100)
		So(rec.LeadID, ShouldEqual, "L1")

		// 完成回调在独立协程里触发余额刷新
		time.Sleep(100 * time.Millisecond)
	})
}

func TestTrackerSubmitFailure(t *testing.T) {
	Convey("a rejected submit leaves a failed record for the consumer", t, func() {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		api := mocks.NewMockServerAPI(ctrl)
		api.EXPECT().SubmitJob(gomock.Any(), "http://s", gomock.Any()).
			Return(client.SubmitJobResp{}, errors.New("quota exhausted"))
		api.EXPECT().ListActiveJobs(gomock.Any(), "http://s").
			Return(client.ActiveJobsResp{}, nil).AnyTimes()

		trk := NewTracker(
			WithOptions(testOptions()),
			WithClientAPI(api),
			WithTokenProvider(staticTokens{}),
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		trk.Start(ctx)
		defer trk.Stop()

		_, err := trk.Submit(ctx, client.SubmitJobReq{LeadID: "L9", Username: "bob"})
		So(err, ShouldNotBeNil)

		recs := trk.Board().List(ctx)
		So(len(recs), ShouldEqual, 1)
		So(recs[0].Status, ShouldEqual, jobs.StatusFailed)
		So(recs[0].ErrorMessage, ShouldContainSubstring, "quota exhausted")
	})
}

func TestTrackerNotStarted(t *testing.T) {
	Convey("submitting before Start is refused", t, func() {
		trk := NewTracker(WithOptions(testOptions()))
		_, err := trk.Submit(context.Background(), client.SubmitJobReq{LeadID: "L1"})
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "not started")
	})
}

func TestDeriveWSBase(t *testing.T) {
	Convey("the stream base derives from the server base", t, func() {
		So(deriveWSBase("https://api.example.com/v1"), ShouldEqual, "wss://api.example.com/v1")
		So(deriveWSBase("http://localhost:8080"), ShouldEqual, "ws://localhost:8080")
		So(deriveWSBase("ws://already"), ShouldEqual, "ws://already")
	})
}
