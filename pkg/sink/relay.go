package sink

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Run drives the blocking worker loop underlying every sink in this
// package: receive with an idle timeout, transform, forward, repeat.
// A failed transform or forward drops that one item and is logged; an
// idle timeout is logged and the loop continues. The loop only ends
// when the input channel closes or the context is canceled.
//
// SensorSink is the batched specialization of this contract (its
// forward is a bulk write of accumulated rows); Run itself serves
// per-item sinks.
func Run[T, U any](
	ctx context.Context,
	in <-chan T,
	timeout time.Duration,
	transform func(T) (U, error),
	forward func(context.Context, U) error,
	logger zerolog.Logger,
) {
	idle := time.NewTimer(timeout)
	defer idle.Stop()

	for {
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(timeout)

		select {
		case item, ok := <-in:
			if !ok {
				logger.Info().Msg("relay input closed")
				return
			}
			out, err := transform(item)
			if err != nil {
				logger.Warn().Err(err).Msg("transform failed, item dropped")
				continue
			}
			if err := forward(ctx, out); err != nil {
				logger.Error().Err(err).Msg("forward failed, item dropped")
			}
		case <-idle.C:
			logger.Debug().Msg("relay idle")
		case <-ctx.Done():
			return
		}
	}
}
