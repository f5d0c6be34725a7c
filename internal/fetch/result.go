// Package fetch wraps backend calls for the pages: results are tri-state,
// queries are cached per parameter set, mutations report through callbacks,
// and slots drop answers that arrive for a superseded request.
package fetch

import "errors"

type Status int

const (
	StatusPending Status = iota
	StatusOK
	StatusErr
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusOK:
		return "ok"
	case StatusErr:
		return "error"
	default:
		return "unknown"
	}
}

// Result is exactly one of pending, a value, or an error.
type Result[T any] struct {
	status Status
	value  T
	err    error
}

func Pending[T any]() Result[T] {
	return Result[T]{status: StatusPending}
}

func OK[T any](v T) Result[T] {
	return Result[T]{status: StatusOK, value: v}
}

// Failed panics on a nil error; an error result must carry one.
func Failed[T any](err error) Result[T] {
	if err == nil {
		panic("fetch: Failed called with nil error")
	}
	return Result[T]{status: StatusErr, err: err}
}

// From builds a result from a (value, error) pair.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Failed[T](err)
	}
	return OK(v)
}

func (r Result[T]) Status() Status  { return r.status }
func (r Result[T]) IsPending() bool { return r.status == StatusPending }
func (r Result[T]) IsOK() bool      { return r.status == StatusOK }
func (r Result[T]) Err() error      { return r.err }

// Value returns the value and whether the result is OK.
func (r Result[T]) Value() (T, bool) {
	return r.value, r.status == StatusOK
}

// Get returns the value, or ErrPending / the error.
func (r Result[T]) Get() (T, error) {
	switch r.status {
	case StatusOK:
		return r.value, nil
	case StatusErr:
		return r.value, r.err
	default:
		return r.value, ErrPending
	}
}

var (
	ErrPending    = errors.New("result pending")
	ErrSuperseded = errors.New("request superseded")
)
