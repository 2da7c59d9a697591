package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusNotFound, KindNotFound},
		{http.StatusConflict, KindConflict},
		{http.StatusTooManyRequests, KindTransport},
		{http.StatusBadGateway, KindTransport},
		{http.StatusInternalServerError, KindTransport},
		{http.StatusBadRequest, KindInternal},
	}
	for _, tc := range cases {
		if got := ClassifyStatus(tc.status); got != tc.want {
			t.Errorf("ClassifyStatus(%d) = %s, want %s", tc.status, got, tc.want)
		}
	}
}

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	inner := NewConflict("scim.create_user", "duplicate")
	wrapped := fmt.Errorf("user u1: %w", inner)

	if !IsConflict(wrapped) {
		t.Error("wrapped conflict not detected")
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Error("foreign error should classify as internal")
	}
	if KindOf(nil) != KindInternal {
		t.Error("nil should classify as internal")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NewAuth("op", nil), http.StatusUnauthorized},
		{NewNotFound("op", "gone"), http.StatusNotFound},
		{NewConflict("op", "dup"), http.StatusConflict},
		{NewTransport("op", errors.New("timeout")), http.StatusBadGateway},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestRetryOnlyRetriesTransport(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return NewConflict("op", "dup")
	})
	if calls != 1 {
		t.Errorf("conflict retried %d times, want 1 call", calls)
	}
	if !IsConflict(err) {
		t.Errorf("err = %v, want conflict", err)
	}
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return NewTransport("op", errors.New("timeout"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return NewTransport("op", errors.New("timeout"))
	})
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if !IsTransport(err) {
		t.Errorf("err = %v, want transport", err)
	}
}
