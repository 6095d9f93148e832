// Package batch groups candidate lookups into bounded-size multi-entity
// queries to cut upstream call volume.
package batch

import (
	"context"

	"githire/internal/common/logger"
	"githire/internal/models"
)

// ProfileSource is the multi-entity fetch the fetcher chunks over.
type ProfileSource interface {
	FetchUserBatch(ctx context.Context, logins []string) (map[string]models.RawProfile, map[string]error, error)
}

// Result carries the successful subset and the ids that must be retried
// individually. Chunking never turns into an all-or-nothing failure.
type Result struct {
	Profiles map[string]models.RawProfile
	Failed   map[string]error
}

type Fetcher struct {
	source    ProfileSource
	chunkSize int
	logger    logger.Logger
}

func New(source ProfileSource, chunkSize int, log logger.Logger) *Fetcher {
	return &Fetcher{
		source:    source,
		chunkSize: chunkSize,
		logger:    log.WithFields(map[string]interface{}{"component": "batch-fetcher"}),
	}
}

// FetchProfiles fetches ids in fixed-size chunks. Entity-level failures
// inside a chunk land in Result.Failed; a whole-chunk failure marks every
// id of that chunk failed and moves on to the next chunk.
func (f *Fetcher) FetchProfiles(ctx context.Context, ids []string) Result {
	result := Result{
		Profiles: make(map[string]models.RawProfile, len(ids)),
		Failed:   make(map[string]error),
	}

	for start := 0; start < len(ids); start += f.chunkSize {
		end := start + f.chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		profiles, failed, err := f.source.FetchUserBatch(ctx, chunk)
		if err != nil {
			f.logger.Warn("chunk fetch failed, deferring ids to individual retry", map[string]interface{}{
				"chunkSize": len(chunk),
				"error":     err.Error(),
			})
			for _, id := range chunk {
				result.Failed[id] = err
			}
			continue
		}

		for id, profile := range profiles {
			result.Profiles[id] = profile
		}
		for id, ferr := range failed {
			result.Failed[id] = ferr
		}
	}

	return result
}
