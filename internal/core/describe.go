package core

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// describeTracks projects tracks into queue descriptors. Tracks listed without an artist are
// looked up in parallel; a track whose lookup fails is dropped instead of failing the queue.
// The result keeps the input order.
func describeTracks(
	ctx context.Context,
	source MediaSource,
	retry *RetryExecutor,
	parallel int,
	tracks []Track,
	logger *zap.Logger,
) []TrackDescriptor {
	slots := make([]*TrackDescriptor, len(tracks))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))

	for i := range tracks {
		if tracks[i].Artist != "" {
			descriptor := tracks[i].Descriptor()
			slots[i] = &descriptor
			continue
		}

		key := tracks[i].Key
		g.Go(func() error {
			track, err := Retry(gCtx, retry, "describe track", func(ctx context.Context) (*Track, error) {
				return source.FetchTrack(ctx, key)
			})
			if err != nil {
				logger.Warn("Dropping track that could not be described",
					zap.String("trackKey", key),
					zap.Error(err))
				return nil
			}

			descriptor := track.Descriptor()
			slots[i] = &descriptor
			return nil
		})
	}

	// Workers never return errors; failed lookups leave their slot empty.
	_ = g.Wait()

	descriptors := make([]TrackDescriptor, 0, len(tracks))
	for _, slot := range slots {
		if slot != nil {
			descriptors = append(descriptors, *slot)
		}
	}
	return descriptors
}
