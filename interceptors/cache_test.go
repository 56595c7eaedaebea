package interceptors

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	fusioncache "github.com/Keksclan/goFusionCache"
	"github.com/Keksclan/goFusionCache/policy"
	"github.com/Keksclan/goFusionCache/storage"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func codeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	st, _ := status.FromError(err)
	return st.Code()
}

func newCache(t *testing.T, opts ...fusioncache.Option) *fusioncache.Cache {
	t.Helper()
	c, err := fusioncache.New(opts...)
	if err != nil {
		t.Fatalf("fusioncache.New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// echoHandler greets the request name and counts its invocations.
func echoHandler(calls *atomic.Int32) grpc.UnaryHandler {
	return func(_ context.Context, req any) (any, error) {
		calls.Add(1)
		return wrapperspb.String("hello " + req.(*wrapperspb.StringValue).GetValue()), nil
	}
}

func greeting(t *testing.T, resp any) string {
	t.Helper()
	sv, ok := resp.(*wrapperspb.StringValue)
	if !ok {
		t.Fatalf("response type %T, want *wrapperspb.StringValue", resp)
	}
	return sv.GetValue()
}

func TestCacheUnary_ServesRepeatedCallsFromCache(t *testing.T) {
	ic := CacheUnary(newCache(t), nil)
	info := &grpc.UnaryServerInfo{FullMethod: "/greet.Service/Hello"}
	var calls atomic.Int32

	for i := range 3 {
		resp, err := ic(t.Context(), wrapperspb.String("ada"), info, echoHandler(&calls))
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if got := greeting(t, resp); got != "hello ada" {
			t.Fatalf("call %d: got %q", i, got)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("handler ran %d times, want 1", n)
	}
}

func TestCacheUnary_DistinctRequestsAndMethods(t *testing.T) {
	ic := CacheUnary(newCache(t), nil)
	var calls atomic.Int32
	h := echoHandler(&calls)

	for _, tc := range []struct {
		method string
		name   string
	}{
		{"/greet.Service/Hello", "ada"},
		{"/greet.Service/Hello", "grace"},
		{"/greet.Service/Bye", "ada"},
	} {
		if _, err := ic(t.Context(), wrapperspb.String(tc.name), &grpc.UnaryServerInfo{FullMethod: tc.method}, h); err != nil {
			t.Fatalf("%s(%s): %v", tc.method, tc.name, err)
		}
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("handler ran %d times, want 3", n)
	}
}

func TestCacheUnary_ResolverSelectsMethods(t *testing.T) {
	r := policy.NewResolver(
		policy.Group("reads").Prefix("/greet.Service/Get").Policy(policy.Policy{Duration: time.Minute}),
		policy.Group("health").Prefix("/grpc.health.").Policy(policy.Policy{Bypass: true}),
	)
	ic := CacheUnary(newCache(t), r)

	tests := []struct {
		method    string
		wantCalls int32
	}{
		{"/greet.Service/GetUser", 1},
		{"/greet.Service/UpdateUser", 2},
		{"/grpc.health.v1.Health/Check", 2},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			var calls atomic.Int32
			info := &grpc.UnaryServerInfo{FullMethod: tt.method}
			for range 2 {
				if _, err := ic(t.Context(), wrapperspb.String("x"), info, echoHandler(&calls)); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}
			if n := calls.Load(); n != tt.wantCalls {
				t.Fatalf("handler ran %d times, want %d", n, tt.wantCalls)
			}
		})
	}
}

func TestCacheUnary_HandlerErrorIsReturnedAndNotCached(t *testing.T) {
	ic := CacheUnary(newCache(t), nil)
	info := &grpc.UnaryServerInfo{FullMethod: "/greet.Service/Hello"}
	var calls atomic.Int32
	failing := func(context.Context, any) (any, error) {
		calls.Add(1)
		return nil, status.Error(codes.NotFound, "no such user")
	}

	for range 2 {
		_, err := ic(t.Context(), wrapperspb.String("nobody"), info, failing)
		if codeOf(err) != codes.NotFound {
			t.Fatalf("expected NotFound, got %v", err)
		}
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("handler ran %d times, want 2", n)
	}
}

func TestCacheUnary_NonProtoRequestPassesThrough(t *testing.T) {
	ic := CacheUnary(newCache(t), nil)
	info := &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}
	var calls atomic.Int32
	h := func(context.Context, any) (any, error) {
		calls.Add(1)
		return "ok", nil
	}

	for range 2 {
		resp, err := ic(t.Context(), "plain", info, h)
		if err != nil || resp != "ok" {
			t.Fatalf("got %v, %v", resp, err)
		}
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("handler ran %d times, want 2", n)
	}
}

func TestCacheUnary_CancelledCaller(t *testing.T) {
	ic := CacheUnary(newCache(t), nil)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := ic(ctx, wrapperspb.String("ada"), &grpc.UnaryServerInfo{FullMethod: "/greet.Service/Hello"}, okHandler)
	if codeOf(err) != codes.Canceled {
		t.Fatalf("expected Canceled, got %v", err)
	}
}

func TestCacheUnary_SharesResponsesThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	newNode := func() grpc.UnaryServerInterceptor {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return CacheUnary(newCache(t, fusioncache.WithDistributedStore(storage.NewRedis(client))), nil)
	}
	a, b := newNode(), newNode()
	info := &grpc.UnaryServerInfo{FullMethod: "/greet.Service/Hello"}
	var calls atomic.Int32

	if _, err := a(t.Context(), wrapperspb.String("ada"), info, echoHandler(&calls)); err != nil {
		t.Fatalf("node a: %v", err)
	}
	resp, err := b(t.Context(), wrapperspb.String("ada"), info, echoHandler(&calls))
	if err != nil {
		t.Fatalf("node b: %v", err)
	}
	if got := greeting(t, resp); got != "hello ada" {
		t.Fatalf("node b got %q", got)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("handler ran %d times, want 1", n)
	}
}

func TestRequestKeyIsDeterministic(t *testing.T) {
	k1, err := requestKey("/m", wrapperspb.String("ada"))
	if err != nil {
		t.Fatal(err)
	}
	k2, _ := requestKey("/m", proto.Clone(wrapperspb.String("ada")))
	k3, _ := requestKey("/m", wrapperspb.String("grace"))
	if k1 != k2 {
		t.Fatalf("equal requests produced %q and %q", k1, k2)
	}
	if k1 == k3 {
		t.Fatal("different requests share a key")
	}
}

// okHandler is a trivial handler that always succeeds.
func okHandler(_ context.Context, _ any) (any, error) { return wrapperspb.String("ok"), nil }
