package worker

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

type Options struct {
	// RateLimitRPS paces item starts. Set to <=0 to disable.
	RateLimitRPS float64

	// ItemTimeout bounds a single item. Set to <=0 to disable.
	ItemTimeout time.Duration

	// DetachItems runs every item on a context that is not canceled with the
	// run context. Cancellation is then only observed between items.
	DetachItems bool
}

// Result holds the output for one input item.
type Result[In any, Out any] struct {
	Index   int
	Input   In
	Output  Out
	Err     error
	Elapsed time.Duration
}

// Callbacks are invoked in input order around each item.
type Callbacks[In any, Out any] struct {
	// OnStart runs before the item is processed.
	OnStart func(idx int, in In)
	// OnResult runs after the item is processed. A non-nil error stops the run.
	OnResult func(Result[In, Out]) error
}

// ProcessAll runs the processor over all input items, one at a time, in order.
func ProcessAll[In any, Out any](
	ctx context.Context,
	items []In,
	processor func(context.Context, In) (Out, error),
	opts Options,
) ([]Result[In, Out], error) {
	return ProcessAllWithCallback(ctx, items, processor, Callbacks[In, Out]{}, opts)
}

// ProcessAllWithCallback runs the processor over all input items strictly
// sequentially and reports each item through cb.
//
// Processor errors are recorded on the item's Result and do not stop the run.
// The run stops early when ctx is done (between items) or when OnResult fails;
// the results collected so far are returned alongside that error.
func ProcessAllWithCallback[In any, Out any](
	ctx context.Context,
	items []In,
	processor func(context.Context, In) (Out, error),
	cb Callbacks[In, Out],
	opts Options,
) ([]Result[In, Out], error) {
	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}

	out := make([]Result[In, Out], 0, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return out, err
			}
		}

		if cb.OnStart != nil {
			cb.OnStart(i, item)
		}
		res := processOne(ctx, i, item, processor, opts)
		out = append(out, res)

		if cb.OnResult != nil {
			if err := cb.OnResult(res); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}

func processOne[In any, Out any](
	ctx context.Context,
	idx int,
	item In,
	processor func(context.Context, In) (Out, error),
	opts Options,
) Result[In, Out] {
	itemCtx := ctx
	if opts.DetachItems {
		itemCtx = context.WithoutCancel(ctx)
	}
	var cancel context.CancelFunc
	if opts.ItemTimeout > 0 {
		itemCtx, cancel = context.WithTimeout(itemCtx, opts.ItemTimeout)
	}

	start := time.Now()
	output, err := processor(itemCtx, item)
	elapsed := time.Since(start)
	if cancel != nil {
		cancel()
	}
	return Result[In, Out]{
		Index:   idx,
		Input:   item,
		Output:  output,
		Err:     err,
		Elapsed: elapsed,
	}
}
