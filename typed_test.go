package fusioncache

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

type user struct {
	ID   int
	Name string
}

func TestTypedGetOrSet(t *testing.T) {
	c := newTestCache(t)
	opts := EntryOptions{Duration: time.Minute}

	u, err := GetOrSet(t.Context(), c, "user:1", func(context.Context) (user, error) {
		return user{ID: 1, Name: "Ada"}, nil
	}, opts)
	if err != nil {
		t.Fatalf("GetOrSet: %v", err)
	}
	if u != (user{ID: 1, Name: "Ada"}) {
		t.Fatalf("user = %+v", u)
	}

	res, err := TryGet[user](t.Context(), c, "user:1", opts)
	if err != nil || !res.Found || res.Value.Name != "Ada" {
		t.Fatalf("TryGet = %+v, %v", res, err)
	}
}

func TestTypedNilFactory(t *testing.T) {
	c := newTestCache(t)
	_, err := GetOrSet[int](t.Context(), c, "k", nil, EntryOptions{Duration: time.Minute})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestTypedTypeMismatch(t *testing.T) {
	c := newTestCache(t)
	opts := EntryOptions{Duration: time.Minute}
	if err := c.Set(t.Context(), "k", "not a number", opts); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, err := TryGet[int](t.Context(), c, "k", opts); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("TryGet err = %v, want ErrTypeMismatch", err)
	}
	if _, err := GetOrDefault(t.Context(), c, "k", 7, opts); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("GetOrDefault err = %v, want ErrTypeMismatch", err)
	}
}

func TestTypedGetOrDefault(t *testing.T) {
	c := newTestCache(t)
	opts := EntryOptions{Duration: time.Minute}

	v, err := GetOrDefault(t.Context(), c, "k", 7, opts)
	if err != nil || v != 7 {
		t.Fatalf("GetOrDefault = %v, %v; want 7", v, err)
	}
	if err := c.Set(t.Context(), "k", 3, opts); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err = GetOrDefault(t.Context(), c, "k", 7, opts)
	if err != nil || v != 3 {
		t.Fatalf("GetOrDefault = %v, %v; want 3", v, err)
	}
}

func TestTypedMissReturnsZero(t *testing.T) {
	c := newTestCache(t)
	res, err := TryGet[*user](t.Context(), c, "k", EntryOptions{})
	if err != nil || res.Found || res.Value != nil {
		t.Fatalf("TryGet = %+v, %v; want zero miss", res, err)
	}
}

func TestConvertNilValue(t *testing.T) {
	v, err := convert[*user]("k", nil)
	if err != nil || v != nil {
		t.Fatalf("convert(nil) = %v, %v", v, err)
	}
}
