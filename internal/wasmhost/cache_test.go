package wasmhost

import (
	"context"
	"testing"
	"time"
)

type fakeExecutor struct {
	calls int
}

func (f *fakeExecutor) Execute(ctx context.Context, paramsJSON string) (Result, error) {
	f.calls++
	return Result{Value: &Value{Kind: KindInteger, Integer: int64(f.calls)}}, nil
}

func TestCachingRunnerServesCachedValueWithinTTL(t *testing.T) {
	fe := &fakeExecutor{}
	c := newCachingRunner(fe, "counter", time.Minute)

	v1, err := c.Execute(context.Background(), `{"x":1}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	v2, err := c.Execute(context.Background(), `{"x":1}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if v1 != v2 {
		t.Fatalf("expected cached value, got %v vs %v", v1, v2)
	}
	if fe.calls != 1 {
		t.Fatalf("expected exactly one underlying call, got %d", fe.calls)
	}
}

func TestCachingRunnerKeysOnCanonicalParams(t *testing.T) {
	fe := &fakeExecutor{}
	c := newCachingRunner(fe, "counter", time.Minute)

	if _, err := c.Execute(context.Background(), `{"a":1,"b":2}`); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Execute(context.Background(), `{"b":2,"a":1}`); err != nil {
		t.Fatal(err)
	}
	if fe.calls != 1 {
		t.Fatalf("expected key-order-independent cache hit, got %d calls", fe.calls)
	}
}

func TestCachingRunnerZeroTTLDisablesCache(t *testing.T) {
	fe := &fakeExecutor{}
	c := newCachingRunner(fe, "counter", 0)

	if _, err := c.Execute(context.Background(), `{"x":1}`); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Execute(context.Background(), `{"x":1}`); err != nil {
		t.Fatal(err)
	}
	if fe.calls != 2 {
		t.Fatalf("expected no caching with zero TTL, got %d calls", fe.calls)
	}
}
