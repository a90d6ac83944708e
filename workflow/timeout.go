package workflow

import (
	"context"
	"time"

	"github.com/dshills/codecrew/workflow/model"
)

// invokeWithTimeout runs one invocation attempt of role, bounded by timeout
// when it is positive. A deadline that fires while ctx is still live is
// reported as KindTimeout by classifyInvokeError.
func invokeWithTimeout(
	ctx context.Context,
	invoker Invoker,
	role Role,
	history []Message,
	timeout time.Duration,
) (model.ChatOut, InvokerErrorKind, error) {
	if timeout <= 0 {
		out, err := invoker.Invoke(ctx, role, history)
		if err != nil {
			return out, classifyInvokeError(err, ctx, ctx), err
		}
		return out, 0, nil
	}

	turnCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// A reply that made it back is kept even when it overran the deadline.
	out, err := invoker.Invoke(turnCtx, role, history)
	if err != nil {
		return out, classifyInvokeError(err, ctx, turnCtx), err
	}
	return out, 0, nil
}
