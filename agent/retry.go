package agent

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v5"

	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/model"
)

// complete calls the gateway, retrying ModelUnavailable failures with
// exponential backoff up to opts.ModelRetries attempts. Other errors and
// context expiry stop immediately. It returns the attempts made.
func complete(
	ctx context.Context,
	gw Gateway,
	opts Options,
	transcript []core.Message,
	tools []model.ToolDefinition,
	callOpts ...func(o *model.CallOptions),
) (*model.Response, int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.RetryInitialInterval
	b.MaxInterval = opts.RetryMaxInterval

	attempts := 0

	resp, err := backoff.Retry(ctx, func() (*model.Response, error) {
		attempts++

		resp, err := gw.Complete(ctx, transcript, tools, callOpts...)
		if err == nil {
			return resp, nil
		}

		if ctx.Err() != nil || !errors.Is(err, core.ErrModelUnavailable) {
			return nil, backoff.Permanent(err)
		}

		opts.Logger.Warn("agent.model.retry", "attempt", attempts, "error", err.Error())

		return nil, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(opts.ModelRetries)))

	return resp, attempts, err
}
