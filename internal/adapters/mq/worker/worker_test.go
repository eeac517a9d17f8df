package worker_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/ivscan/internal/adapters/mq/queue"
	"github.com/okian/ivscan/internal/adapters/mq/worker"
	"github.com/okian/ivscan/internal/domain/model"
	"github.com/okian/ivscan/internal/domain/refdata"
	"github.com/okian/ivscan/internal/domain/transcript"
	logging "github.com/okian/ivscan/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	_ = logging.InitWithOptions(io.Discard, logging.FormatText)
	goleak.VerifyTestMain(m)
}

// mockEvaluator fails lines starting with "bad" and blocks on "block".
type mockEvaluator struct {
	release chan struct{}
}

func (e *mockEvaluator) Evaluate(ctx context.Context, line string) (model.Evaluation, error) {
	switch {
	case strings.HasPrefix(line, "bad"):
		return model.Evaluation{}, transcript.ErrNoMatch
	case strings.HasPrefix(line, "block"):
		select {
		case <-e.release:
		case <-ctx.Done():
			return model.Evaluation{}, ctx.Err()
		}
	}
	return model.Evaluation{ID: line, Outcome: model.OutcomeOK}, nil
}

type mockRecorder struct {
	mu   sync.Mutex
	seen map[int]string
	fail error
}

func newMockRecorder() *mockRecorder { return &mockRecorder{seen: map[int]string{}} }

func (r *mockRecorder) Record(_ context.Context, seq int, ev model.Evaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.seen[seq] = ev.ID
	return nil
}

func (r *mockRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func feed(jobs ...queue.Job) <-chan queue.Job {
	ch := make(chan queue.Job, len(jobs))
	for _, j := range jobs {
		ch <- j
	}
	close(ch)
	return ch
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker with an error handler", t, func() {
		rec := newMockRecorder()
		var failed []int
		w := worker.NewInMemoryWorker(&mockEvaluator{}, rec,
			worker.WithName("test-worker"),
			worker.WithErrorHandler(func(_ context.Context, j queue.Job, err error) {
				failed = append(failed, j.Seq)
			}),
		)

		convey.Convey("When it runs over a closed job channel", func() {
			err := w.Run(context.Background(), feed(
				queue.Job{Seq: 1, Line: "a"},
				queue.Job{Seq: 2, Line: "bad"},
				queue.Job{Seq: 3, Line: "c"},
			))

			convey.Convey("Then good lines are recorded and bad lines reported", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.seen, convey.ShouldResemble, map[int]string{1: "a", 3: "c"})
				convey.So(failed, convey.ShouldResemble, []int{2})
				convey.So(w.Processed(), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When the recorder fails", func() {
			rec.fail = errors.New("store down")
			err := w.Run(context.Background(), feed(queue.Job{Seq: 1, Line: "a"}, queue.Job{Seq: 2, Line: "b"}))

			convey.Convey("Then the worker stops with the error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "store down")
				convey.So(w.Processed(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When ctx is cancelled before a job is taken", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := w.Run(ctx, feed(queue.Job{Seq: 1, Line: "a"}))

			convey.Convey("Then no job is evaluated", func() {
				convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
				convey.So(rec.count(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When shut down while idle", func() {
			jobs := make(chan queue.Job)
			done := make(chan error, 1)
			go func() { done <- w.Run(context.Background(), jobs) }()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err := w.Shutdown(ctx)

			convey.Convey("Then it stops gracefully", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(<-done, convey.ShouldBeNil)
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When shutdown never completes", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()

			convey.Convey("Then Shutdown reports the timeout", func() {
				convey.So(w.Shutdown(ctx), convey.ShouldNotBeNil)
			})
		})
	})
}

func TestReason(t *testing.T) {
	convey.Convey("Given evaluation errors", t, func() {
		convey.So(worker.Reason(transcript.ErrNoMatch), convey.ShouldEqual, "no_match")
		convey.So(worker.Reason(&transcript.ParseError{Kind: transcript.ErrMalformedField, Field: "CP"}), convey.ShouldEqual, "malformed")
		convey.So(worker.Reason(&refdata.LookupError{What: "level", Value: "41"}), convey.ShouldEqual, "lookup")
		convey.So(worker.Reason(context.Canceled), convey.ShouldEqual, "cancelled")
		convey.So(worker.Reason(errors.New("other")), convey.ShouldEqual, "evaluation")
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool over a real queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		rec := newMockRecorder()

		convey.Convey("When creating a pool with default count", func() {
			pool := worker.NewPool(0, q, &mockEvaluator{}, rec)

			convey.Convey("Then it gets at least one worker", func() {
				convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
				convey.So(q.Close(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When many jobs flow through three workers", func() {
			pool := worker.NewPool(3, q, &mockEvaluator{}, rec)
			ctx := context.Background()

			go func() {
				for i := 0; i < 100; i++ {
					line := "ok"
					if i%10 == 0 {
						line = "bad"
					}
					_ = q.Enqueue(ctx, queue.Job{Seq: i, Line: line})
				}
				_ = q.Close()
			}()
			err := pool.Run(ctx)

			convey.Convey("Then every good job is recorded once", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.count(), convey.ShouldEqual, 90)
				convey.So(pool.Processed(), convey.ShouldEqual, 90)
			})
		})

		convey.Convey("When the run is cancelled mid-stream", func() {
			eval := &mockEvaluator{release: make(chan struct{})}
			pool := worker.NewPool(2, q, eval, rec)
			ctx, cancel := context.WithCancel(context.Background())

			convey.So(q.Enqueue(ctx, queue.Job{Seq: 1, Line: "block"}), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, queue.Job{Seq: 2, Line: "block"}), convey.ShouldBeNil)
			go func() {
				time.Sleep(20 * time.Millisecond)
				cancel()
			}()
			err := pool.Run(ctx)
			_ = q.Close()

			convey.Convey("Then Run returns the cancellation", func() {
				convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
				convey.So(rec.count(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the recorder fails", func() {
			rec.fail = errors.New("store down")
			pool := worker.NewPool(2, q, &mockEvaluator{}, rec)
			ctx := context.Background()
			convey.So(q.Enqueue(ctx, queue.Job{Seq: 1, Line: "a"}), convey.ShouldBeNil)

			err := pool.Run(ctx)
			_ = q.Close()

			convey.Convey("Then the pool stops with the error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "store down")
			})
		})

		convey.Convey("When shutting down a running pool", func() {
			pool := worker.NewPool(2, q, &mockEvaluator{}, rec)
			done := make(chan error, 1)
			go func() { done <- pool.Run(context.Background()) }()
			time.Sleep(10 * time.Millisecond)

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err := pool.Shutdown(ctx)
			_ = q.Close()

			convey.Convey("Then all workers stop", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(<-done, convey.ShouldBeNil)
			})
		})
	})
}
