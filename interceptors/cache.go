// Package interceptors provides a gRPC unary server interceptor that serves
// idempotent calls from a fusioncache.Cache.
package interceptors

import (
	"context"
	"strconv"

	fusioncache "github.com/Keksclan/goFusionCache"
	"github.com/Keksclan/goFusionCache/policy"
	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
)

// errNotMessage is returned when a handler answers with something that is
// not a protobuf message and therefore cannot be cached.
var errNotMessage = status.Error(codes.Internal, "response is not a protobuf message")

// CacheUnary returns a unary server interceptor that answers calls from c.
// Concurrent identical calls share one handler invocation.
//
// When r is nil every method is cached with the cache's default options.
// Otherwise only methods matching a group are cached, using that group's
// policy; a policy with Bypass passes the call straight through.
//
// Responses are stored as the wire encoding of an anypb.Any so that they
// survive a serializing distributed tier. Handler errors are returned
// unchanged and never cached. When the cache itself fails the handler is
// called directly.
func CacheUnary(c *fusioncache.Cache, r *policy.Resolver) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		msg, ok := req.(proto.Message)
		if !ok {
			return handler(ctx, req)
		}

		var setup func(*fusioncache.EntryOptions)
		if r != nil {
			_, pol, ok := r.Resolve(info.FullMethod)
			if !ok || pol.Bypass {
				return handler(ctx, req)
			}
			setup = pol.Apply
		}

		key, err := requestKey(info.FullMethod, msg)
		if err != nil {
			return handler(ctx, req)
		}

		// Set only on the goroutine whose factory ran; callers that joined
		// it see the marked error instead.
		var handlerErr error
		b, err := fusioncache.GetOrSetWith(ctx, c, key, func(ctx context.Context) ([]byte, error) {
			resp, err := handler(ctx, req)
			if err != nil {
				handlerErr = err
				return nil, err
			}
			return encodeResponse(resp)
		}, setup)

		switch {
		case err == nil:
		case errors.Is(err, fusioncache.ErrFactoryFailed):
			if handlerErr != nil {
				return nil, handlerErr
			}
			return nil, toStatus(err)
		case errors.Is(err, fusioncache.ErrCancelled):
			return nil, status.FromContextError(ctx.Err()).Err()
		default:
			return handler(ctx, req)
		}

		resp, err := decodeResponse(b)
		if err != nil {
			return handler(ctx, req)
		}
		return resp, nil
	}
}

// requestKey derives the cache key from the method and a fingerprint of the
// deterministic encoding of the request.
func requestKey(fullMethod string, req proto.Message) (string, error) {
	b, err := proto.MarshalOptions{Deterministic: true}.Marshal(req)
	if err != nil {
		return "", err
	}
	return fullMethod + ":" + strconv.FormatUint(xxhash.Sum64(b), 16), nil
}

func encodeResponse(resp any) ([]byte, error) {
	msg, ok := resp.(proto.Message)
	if !ok {
		return nil, errNotMessage
	}
	a, err := anypb.New(msg)
	if err != nil {
		return nil, errors.Wrap(err, "interceptors: wrap response")
	}
	b, err := proto.Marshal(a)
	if err != nil {
		return nil, errors.Wrap(err, "interceptors: encode response")
	}
	return b, nil
}

func decodeResponse(b []byte) (proto.Message, error) {
	var a anypb.Any
	if err := proto.Unmarshal(b, &a); err != nil {
		return nil, errors.Wrap(err, "interceptors: decode response")
	}
	msg, err := a.UnmarshalNew()
	if err != nil {
		return nil, errors.Wrap(err, "interceptors: unpack response")
	}
	return msg, nil
}

func toStatus(err error) error {
	if st, ok := status.FromError(err); ok {
		return st.Err()
	}
	return status.Error(codes.Internal, err.Error())
}
