package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

var errPermanent = errors.New("permanent")

func TestSubmitWaitReturnsOwnResult(t *testing.T) {
	pool, err := New(Config{Workers: 4, QueueSize: 16}, func(_ context.Context, task *Task) *Result {
		return &Result{Success: true, Data: task.Payload.(int) * 2}
	}, nil)
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	pool.Start()
	defer pool.Stop()

	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func(i int) {
			res, err := pool.SubmitWait(context.Background(), &Task{ID: fmt.Sprint(i), Payload: i})
			if err != nil {
				done <- err
				return
			}
			if res.TaskID != fmt.Sprint(i) || res.Data.(int) != i*2 {
				done <- fmt.Errorf("task %d got result %+v", i, res)
				return
			}
			done <- nil
		}(i)
	}
	for i := 0; i < 10; i++ {
		if err := <-done; err != nil {
			t.Error(err)
		}
	}
}

func TestRetriesUntilSuccess(t *testing.T) {
	var calls int32
	pool, _ := New(Config{Workers: 1, QueueSize: 1, MaxRetries: 3, RetryDelay: time.Millisecond}, func(context.Context, *Task) *Result {
		if atomic.AddInt32(&calls, 1) < 3 {
			return &Result{Error: errors.New("version conflict")}
		}
		return &Result{Success: true}
	}, nil)
	pool.Start()
	defer pool.Stop()

	res, err := pool.SubmitWait(context.Background(), &Task{ID: "t"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !res.Success || res.Attempts != 3 {
		t.Errorf("expected success on third attempt, got %+v", res)
	}
	if pool.Stats().TasksRetried != 2 {
		t.Errorf("expected 2 retries, got %d", pool.Stats().TasksRetried)
	}
}

func TestNonRetryableStopsImmediately(t *testing.T) {
	var calls int32
	cfg := Config{Workers: 1, QueueSize: 1, MaxRetries: 5, RetryDelay: time.Millisecond,
		Retryable: func(err error) bool { return !errors.Is(err, errPermanent) }}
	pool, _ := New(cfg, func(context.Context, *Task) *Result {
		atomic.AddInt32(&calls, 1)
		return &Result{Error: errPermanent}
	}, nil)
	pool.Start()
	defer pool.Stop()

	res, _ := pool.SubmitWait(context.Background(), &Task{ID: "t"})
	if res.Success || !errors.Is(res.Error, errPermanent) || atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected a single failed attempt, got %+v after %d calls", res, calls)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	pool, _ := New(DefaultConfig(), func(context.Context, *Task) *Result { return &Result{Success: true} }, nil)
	pool.Start()
	pool.Stop()
	pool.Stop()

	if err := pool.Submit(&Task{ID: "late"}); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("expected ErrShuttingDown, got %v", err)
	}
}
