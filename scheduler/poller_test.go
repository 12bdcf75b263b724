package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/mock/gomock"

	"github.com/mengeric/jobsync-client-go/client"
	"github.com/mengeric/jobsync-client-go/jobs"
	"github.com/mengeric/jobsync-client-go/mocks"
)

func intp(v int) *int { return &v }

// fakeOpener 记录补开通道的请求。
type fakeOpener struct {
	mu     sync.Mutex
	opened []string
}

func (f *fakeOpener) Open(jobID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, jobID)
}

func (f *fakeOpener) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opened)
}

func TestInterval(t *testing.T) {
	Convey("poll interval should adapt to the active job count", t, func() {
		p := NewPoller(nil, "", jobs.NewBoard(nil, time.Minute), nil, Options{})

		_, ok := p.Interval(0)
		So(ok, ShouldBeFalse) // 没有活跃任务：完全停摆

		d, ok := p.Interval(2)
		So(ok, ShouldBeTrue)
		So(d, ShouldEqual, 10*time.Second)

		d, ok = p.Interval(5)
		So(ok, ShouldBeTrue)
		So(d, ShouldEqual, 5*time.Second)
	})
}

func TestSyncOnce(t *testing.T) {
	ctx := context.Background()

	Convey("fetched records merge into the board", t, func() {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		api := mocks.NewMockServerAPI(ctrl)
		board := jobs.NewBoard(nil, time.Minute)
		opener := &fakeOpener{}
		p := NewPoller(api, "http://s", board, opener, Options{})

		Convey("unknown job is inserted and gets a channel", func() {
			api.EXPECT().ListActiveJobs(gomock.Any(), "http://s").Return(client.ActiveJobsResp{
				ActiveCount: 1,
				Jobs: []client.JobSnapshot{{
					JobID: "J1", LeadID: "L1", Status: "active", Progress: 35,
					Step: client.Step{Current: 2, Total: 5},
				}},
			}, nil)

			So(p.syncOnce(ctx), ShouldBeNil)
			rec, ok := board.Get(ctx, "J1")
			So(ok, ShouldBeTrue)
			So(rec.Status, ShouldEqual, jobs.StatusActive)
			So(rec.Progress, ShouldEqual, 35)
			So(opener.count(), ShouldEqual, 1)
		})

		Convey("optimistic local record is confirmed, not duplicated", func() {
			key, _ := board.InsertOptimistic(ctx, jobs.Record{LeadID: "L2", Username: "carol"})
			api.EXPECT().ListActiveJobs(gomock.Any(), "http://s").Return(client.ActiveJobsResp{
				ActiveCount: 1,
				Jobs: []client.JobSnapshot{{
					JobID: "J2", LeadID: "L2", Status: "active", Progress: 10,
					AvatarURL: "http://a/c.png",
				}},
			}, nil)

			So(p.syncOnce(ctx), ShouldBeNil)
			_, ok := board.Get(ctx, key)
			So(ok, ShouldBeFalse) // 临时键已被换掉
			rec, ok := board.Get(ctx, "J2")
			So(ok, ShouldBeTrue)
			So(rec.Optimistic, ShouldBeFalse)
			So(rec.Username, ShouldEqual, "carol")
			So(rec.AvatarURL, ShouldEqual, "http://a/c.png")
			So(len(board.List(ctx)), ShouldEqual, 1)
		})

		Convey("fetched terminal status wins over local active", func() {
			So(board.Upsert(ctx, jobs.Patch{ID: "J3", Status: jobs.StatusActive, Progress: intp(70)}), ShouldBeNil)
			api.EXPECT().ListActiveJobs(gomock.Any(), "http://s").Return(client.ActiveJobsResp{
				ActiveCount: 0,
				Jobs: []client.JobSnapshot{{
					JobID: "J3", Status: "complete", Progress: 100,
				}},
			}, nil)

			So(p.syncOnce(ctx), ShouldBeNil)
			rec, _ := board.Get(ctx, "J3")
			So(rec.Status, ShouldEqual, jobs.StatusComplete)
			So(rec.Progress, ShouldEqual, 100)
		})

		Convey("identical snapshot twice is idempotent", func() {
			snap := client.JobSnapshot{JobID: "J4", Status: "active", Progress: 50, Step: client.Step{Current: 1, Total: 2}}
			api.EXPECT().ListActiveJobs(gomock.Any(), "http://s").Return(client.ActiveJobsResp{ActiveCount: 1, Jobs: []client.JobSnapshot{snap}}, nil).Times(2)

			So(p.syncOnce(ctx), ShouldBeNil)
			first, _ := board.Get(ctx, "J4")
			time.Sleep(5 * time.Millisecond)
			So(p.syncOnce(ctx), ShouldBeNil)
			second, _ := board.Get(ctx, "J4")
			So(second, ShouldResemble, first)
		})
	})
}

func TestOrphanPromotion(t *testing.T) {
	ctx := context.Background()

	Convey("a confirmed active job absent from the fetch is promoted after the window", t, func() {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		api := mocks.NewMockServerAPI(ctrl)
		board := jobs.NewBoard(nil, time.Minute)
		p := NewPoller(api, "http://s", board, nil, Options{})

		base := time.Now()
		So(board.Upsert(ctx, jobs.Patch{ID: "J1", Status: jobs.StatusActive, StartedAt: base}), ShouldBeNil)

		// 服务端不再报告该任务
		api.EXPECT().ListActiveJobs(gomock.Any(), "http://s").Return(client.ActiveJobsResp{}, nil).Times(2)

		// 开始 20 秒：窗口未过，不提升
		p.SetClock(func() time.Time { return base.Add(20 * time.Second) })
		So(p.syncOnce(ctx), ShouldBeNil)
		rec, _ := board.Get(ctx, "J1")
		So(rec.Status, ShouldEqual, jobs.StatusActive)

		// 超过 30 秒后：强制提升为 complete
		p.SetClock(func() time.Time { return base.Add(31 * time.Second) })
		So(p.syncOnce(ctx), ShouldBeNil)
		rec, _ = board.Get(ctx, "J1")
		So(rec.Status, ShouldEqual, jobs.StatusComplete)
		So(rec.Progress, ShouldEqual, 100)
	})

	Convey("unconfirmed optimistic records are left for the submit path", t, func() {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		api := mocks.NewMockServerAPI(ctrl)
		board := jobs.NewBoard(nil, time.Minute)
		p := NewPoller(api, "http://s", board, nil, Options{})

		_, err := board.InsertOptimistic(ctx, jobs.Record{LeadID: "L1"})
		So(err, ShouldBeNil)
		api.EXPECT().ListActiveJobs(gomock.Any(), "http://s").Return(client.ActiveJobsResp{}, nil)

		p.SetClock(func() time.Time { return time.Now().Add(time.Hour) })
		So(p.syncOnce(ctx), ShouldBeNil)
		rec, ok := board.FindOptimistic(ctx, "L1")
		So(ok, ShouldBeTrue)
		So(rec.Status, ShouldEqual, jobs.StatusPending)
	})
}

func TestAwaitTerminal(t *testing.T) {
	ctx := context.Background()

	Convey("await returns once the job reaches a terminal state", t, func() {
		board := jobs.NewBoard(nil, time.Minute)
		p := NewPoller(nil, "", board, nil, Options{AwaitEvery: 10 * time.Millisecond, AwaitAttempts: 50})

		So(board.Upsert(ctx, jobs.Patch{ID: "J1", Status: jobs.StatusActive}), ShouldBeNil)
		go func() {
			time.Sleep(60 * time.Millisecond)
			_ = board.Upsert(ctx, jobs.Patch{ID: "J1", Status: jobs.StatusComplete, MergeOnly: true})
		}()

		rec, err := p.AwaitTerminal(ctx, "J1")
		So(err, ShouldBeNil)
		So(rec.Status, ShouldEqual, jobs.StatusComplete)
	})

	Convey("exhausting the attempt budget fails the job with a timeout", t, func() {
		board := jobs.NewBoard(nil, time.Minute)
		p := NewPoller(nil, "", board, nil, Options{AwaitEvery: 5 * time.Millisecond, AwaitAttempts: 3})

		So(board.Upsert(ctx, jobs.Patch{ID: "J1", Status: jobs.StatusActive}), ShouldBeNil)
		rec, err := p.AwaitTerminal(ctx, "J1")
		So(err, ShouldNotBeNil)
		So(rec.Status, ShouldEqual, jobs.StatusFailed)
		So(rec.ErrorMessage, ShouldContainSubstring, "terminal state")
	})
}

func TestPollerLoop(t *testing.T) {
	Convey("a kicked poller syncs promptly and keeps the board fresh", t, func() {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		api := mocks.NewMockServerAPI(ctrl)
		board := jobs.NewBoard(nil, time.Minute)
		p := NewPoller(api, "http://s", board, nil, Options{SlowEvery: 30 * time.Millisecond, FastEvery: 15 * time.Millisecond})

		api.EXPECT().ListActiveJobs(gomock.Any(), "http://s").Return(client.ActiveJobsResp{
			ActiveCount: 1,
			Jobs:        []client.JobSnapshot{{JobID: "J1", Status: "active", Progress: 20}},
		}, nil).MinTimes(1)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p.Start(ctx)
		p.Kick()

		time.Sleep(100 * time.Millisecond)
		rec, ok := board.Get(context.Background(), "J1")
		So(ok, ShouldBeTrue)
		So(rec.Progress, ShouldEqual, 20)
	})
}
