package fn

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResultOkErr(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok result should be ok")
	}
	v, err := r.Unwrap()
	if v != 42 || err != nil {
		t.Fatalf("unwrap: got %d, %v", v, err)
	}

	e := Err[int](errors.New("boom"))
	if e.IsOk() {
		t.Fatal("Err result should not be ok")
	}
	if e.UnwrapOr(7) != 7 {
		t.Fatal("UnwrapOr should return fallback")
	}
}

func TestFromPair(t *testing.T) {
	if r := FromPair(1, nil); r.IsErr() {
		t.Fatal("nil error should be ok")
	}
	if r := FromPair(0, errors.New("x")); r.IsOk() {
		t.Fatal("non-nil error should be err")
	}
}

func TestCollect(t *testing.T) {
	all := []Result[int]{Ok(1), Ok(2), Ok(3)}
	r := Collect(all)
	vals, err := r.Unwrap()
	if err != nil || len(vals) != 3 {
		t.Fatalf("collect: %v %v", vals, err)
	}

	mixed := []Result[int]{Ok(1), Err[int](errors.New("bad")), Ok(3)}
	if Collect(mixed).IsOk() {
		t.Fatal("collect with error should fail")
	}
}

func TestThenShortCircuits(t *testing.T) {
	calls := 0
	first := func(_ context.Context, n int) Result[int] { return Err[int](errors.New("first failed")) }
	second := func(_ context.Context, n int) Result[int] { calls++; return Ok(n) }

	r := Then(first, second)(context.Background(), 1)
	if r.IsOk() {
		t.Fatal("expected error")
	}
	if calls != 0 {
		t.Fatal("second stage should not run after failure")
	}
}

func TestPipeline(t *testing.T) {
	double := MapStage(func(n int) int { return n * 2 })
	addOne := MapStage(func(n int) int { return n + 1 })

	r := Pipeline(double, addOne)(context.Background(), 5)
	v, err := r.Unwrap()
	if err != nil || v != 11 {
		t.Fatalf("pipeline: got %d, %v", v, err)
	}
}

func TestRetryEventualSuccess(t *testing.T) {
	attempts := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond}, func(_ context.Context) Result[string] {
		attempts++
		if attempts < 3 {
			return Errf[string]("attempt %d", attempts)
		}
		return Ok("done")
	})
	v, err := r.Unwrap()
	if err != nil || v != "done" {
		t.Fatalf("retry: got %q, %v", v, err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryExhausted(t *testing.T) {
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond}, func(_ context.Context) Result[int] {
		return Errf[int]("always fails")
	})
	if r.IsOk() {
		t.Fatal("expected exhausted retry to fail")
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Retry(ctx, RetryOpts{MaxAttempts: 5, InitialWait: 50 * time.Millisecond, MaxWait: time.Second}, func(_ context.Context) Result[int] {
		return Errf[int]("fail")
	})
	_, err := r.Unwrap()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestChunk(t *testing.T) {
	chunks := Chunk([]int{1, 2, 3, 4, 5}, 2)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[2]) != 1 || chunks[2][0] != 5 {
		t.Fatal("last chunk should hold the remainder")
	}
	if Chunk([]int{1}, 0) != nil {
		t.Fatal("n <= 0 should return nil")
	}
}

func TestUniqueBy(t *testing.T) {
	type doc struct{ path string }
	docs := []doc{{"a"}, {"b"}, {"a"}}
	out := UniqueBy(docs, func(d doc) string { return d.path })
	if len(out) != 2 {
		t.Fatalf("expected 2 unique docs, got %d", len(out))
	}
}

func TestParMapResultOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	results := ParMapResult(items, 2, func(n int) Result[int] {
		return Ok(n * 10)
	})
	for i, r := range results {
		v, err := r.Unwrap()
		if err != nil || v != items[i]*10 {
			t.Fatalf("index %d: got %d, %v", i, v, err)
		}
	}
}

func TestBatchStageCollectsFirstError(t *testing.T) {
	stage := func(_ context.Context, n int) Result[int] {
		if n == 3 {
			return Errf[int]("bad item %d", n)
		}
		return Ok(n)
	}
	r := BatchStage(2, stage)(context.Background(), []int{1, 2, 3, 4})
	if r.IsOk() {
		t.Fatal("expected batch to surface the error")
	}
}
