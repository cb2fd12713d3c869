package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/xpense/backend/internal/repository"
)

// observe streams load() now and again after every commit touching tables.
// The first value reflects the state at subscription time. The channel is
// closed once ctx is done. A slow reader skips intermediate states and always
// receives the latest one.
func observe[T any](
	ctx context.Context,
	store repository.Store,
	log logrus.FieldLogger,
	load func(ctx context.Context) (T, error),
	tables ...repository.Table,
) (<-chan T, error) {
	// Subscribe before the first load so no commit falls in between.
	sub := store.Subscribe(tables...)

	first, err := load(ctx)
	if err != nil {
		sub.Close()
		return nil, err
	}

	out := make(chan T)
	go func() {
		defer close(out)
		defer sub.Close()

		value, send := first, true
		for {
			if send {
				select {
				case out <- value:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.C:
				if !ok {
					return
				}
			}

			next, err := load(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.WithError(err).Warn("observer reload failed, waiting for next change")
				send = false
				continue
			}
			value, send = next, true
		}
	}()
	return out, nil
}
