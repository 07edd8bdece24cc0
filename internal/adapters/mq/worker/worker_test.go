package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/questrank/internal/adapters/mq/queue"
	"github.com/okian/questrank/internal/adapters/mq/worker"
	"github.com/okian/questrank/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

type recordingInvalidator struct {
	mu    sync.Mutex
	seen  []string
	fail  map[string]error
	delay time.Duration
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, c model.FactChange) error {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.fail[c.EventID]; ok {
		return err
	}
	r.seen = append(r.seen, c.EventID)
	return nil
}

func (r *recordingInvalidator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func change(id string) model.FactChange {
	return model.FactChange{EventID: id, UserID: "bob", Kind: model.SubmissionMade, Source: "test"}
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over a real queue", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		inv := &recordingInvalidator{fail: map[string]error{}}
		pool := worker.NewPool(4, q, inv)
		pool.Start(ctx)

		convey.Convey("When notifications are enqueued", func() {
			for i := 0; i < 50; i++ {
				convey.So(q.Enqueue(ctx, change(fmt.Sprintf("e%d", i))), convey.ShouldBeNil)
			}

			convey.Convey("Then every one is invalidated once", func() {
				convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
				convey.So(inv.count(), convey.ShouldEqual, 50)
				convey.So(pool.Processed(), convey.ShouldEqual, 50)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When an invalidation fails", func() {
			inv.fail["bad"] = errors.New("redis down")
			convey.So(q.Enqueue(ctx, change("bad")), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, change("good")), convey.ShouldBeNil)

			convey.Convey("Then the worker keeps going", func() {
				convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
				convey.So(inv.count(), convey.ShouldEqual, 1)
				convey.So(pool.Processed(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("Then the pool reports its size", func() {
			convey.So(pool.Size(), convey.ShouldEqual, 4)
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given a non-positive worker count", t, func() {
		pool := worker.NewPool(0, queue.NewInMemoryQueue(), &recordingInvalidator{})
		convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
	})
}

func TestWorkerShutdown(t *testing.T) {
	convey.Convey("Given a worker blocked on a slow invalidation", t, func() {
		q := queue.NewInMemoryQueue()
		inv := &recordingInvalidator{delay: 200 * time.Millisecond}
		w := worker.NewInMemoryWorker(q, inv, worker.WithName("slow"))
		go w.Run(context.Background())
		convey.So(q.Enqueue(context.Background(), change("slow")), convey.ShouldBeNil)
		time.Sleep(20 * time.Millisecond)

		convey.Convey("When shutdown has too little time", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()
			err := w.Shutdown(ctx)

			convey.Convey("Then it reports the timeout", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When shutdown can wait", func() {
			err := w.Shutdown(context.Background())

			convey.Convey("Then the in-flight notification completes", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(w.Processed(), convey.ShouldEqual, 1)
			})
		})
	})

	convey.Convey("Given a cancelled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		w := worker.NewInMemoryWorker(queue.NewInMemoryQueue(), &recordingInvalidator{})
		done := make(chan struct{})
		go func() {
			w.Run(ctx)
			close(done)
		}()
		cancel()

		convey.So(func() { <-done }, convey.ShouldNotPanic)
	})
}
