package fetch

import "context"

// Callbacks receive the outcome of a mutation. Either may be nil.
type Callbacks[Out any] struct {
	OnSuccess func(Out)
	OnError   func(error)
}

// Mutation runs a write once per call. It never retries and has no side
// effects of its own; what happens after is up to the callbacks.
type Mutation[In, Out any] struct {
	fn func(ctx context.Context, in In) (Out, error)
}

func NewMutation[In, Out any](fn func(ctx context.Context, in In) (Out, error)) *Mutation[In, Out] {
	return &Mutation[In, Out]{fn: fn}
}

func (m *Mutation[In, Out]) Run(ctx context.Context, in In, cb Callbacks[Out]) Result[Out] {
	out, err := m.fn(ctx, in)
	if err != nil {
		if cb.OnError != nil {
			cb.OnError(err)
		}
		return Failed[Out](err)
	}
	if cb.OnSuccess != nil {
		cb.OnSuccess(out)
	}
	return OK(out)
}
