package core

import "context"

// InputAdapter loads the input a pipeline run processes.
type InputAdapter[In any] interface {
	Load(ctx context.Context) (In, error)
}

// OutputAdapter persists the (possibly partial) output of a pipeline run.
//
// Implementations must tolerate being called repeatedly with the same value:
// pipelines checkpoint by storing the whole output again.
type OutputAdapter[Out any] interface {
	Store(ctx context.Context, out Out) error
}

// Processor transforms one input item into one output item.
type Processor[In any, Out any] interface {
	Process(ctx context.Context, in In) (Out, error)
}

// ProcessFunc adapts a function to the Processor interface.
type ProcessFunc[In any, Out any] func(ctx context.Context, in In) (Out, error)

func (f ProcessFunc[In, Out]) Process(ctx context.Context, in In) (Out, error) {
	return f(ctx, in)
}

// OutputFunc adapts a function to the OutputAdapter interface.
type OutputFunc[Out any] func(ctx context.Context, out Out) error

func (f OutputFunc[Out]) Store(ctx context.Context, out Out) error {
	return f(ctx, out)
}
