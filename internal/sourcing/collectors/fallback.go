package collectors

import (
	"context"

	cerrors "githire/internal/common/errors"
	"githire/internal/common/logger"
	"githire/internal/common/metrics"
	"githire/internal/models"
)

// PlatformAPI is the slice of the upstream client the orchestrator needs.
type PlatformAPI interface {
	ManifestSource
	ListRepositories(ctx context.Context, login string) ([]models.Repository, error)
	ListStarred(ctx context.Context, login string) ([]models.Repository, error)
}

// BundleCache is the profile-tier cache the orchestrator reads through. The
// raw profile is stored next to the bundle so a warm candidate costs no
// upstream calls on later runs.
type BundleCache interface {
	GetCandidate(ctx context.Context, candidateID string) (*models.EvidenceBundle, *models.RawProfile, bool)
	PutCandidate(ctx context.Context, candidateID string, bundle *models.EvidenceBundle, profile *models.RawProfile)
}

// Orchestrator runs every collector for one candidate and assembles the
// evidence bundle. The repository list is fetched once and shared by the
// topics, languages, names and dependency collectors.
type Orchestrator struct {
	api    PlatformAPI
	cache  BundleCache
	logger logger.Logger
}

func NewOrchestrator(api PlatformAPI, cache BundleCache, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		api:    api,
		cache:  cache,
		logger: log.WithFields(map[string]interface{}{"component": "collector-orchestrator"}),
	}
}

// Collect produces the evidence bundle for one candidate. Individual signal
// failures degrade the bundle to the fallback method and are recorded in
// FailedSignals; only the loss of every signal is an error. Bundles built
// from the full primary path are cached; degraded bundles are not, so the
// next run re-attempts the failed collectors.
func (o *Orchestrator) Collect(ctx context.Context, candidateID string, profile *models.RawProfile) (*models.EvidenceBundle, error) {
	if cached, _, ok := o.cache.GetCandidate(ctx, candidateID); ok {
		metrics.FallbackTotal.WithLabelValues(string(cached.Method)).Inc()
		return cached, nil
	}

	bundle := &models.EvidenceBundle{
		CandidateID: candidateID,
		Method:      models.MethodPrimary,
	}

	repos, repoErr := o.api.ListRepositories(ctx, candidateID)
	if repoErr != nil {
		// Without the repo list only the bio signal can run.
		o.logger.Warn("repository listing failed, repo-derived signals unavailable", map[string]interface{}{
			"candidateId": candidateID,
			"error":       repoErr.Error(),
		})
		bundle.FailedSignals = append(bundle.FailedSignals,
			models.SignalDependency, models.SignalTopics, models.SignalLanguages, models.SignalRepoNames)
	} else {
		bundle.RepositoriesAnalyzed = len(repos)

		deps, err := collectDependencies(ctx, o.api, repos)
		if err != nil {
			o.logger.Warn("dependency manifest collection failed, degrading to fallback signals", map[string]interface{}{
				"candidateId": candidateID,
				"error":       err.Error(),
			})
			bundle.FailedSignals = append(bundle.FailedSignals, models.SignalDependency)
		} else {
			bundle.Items = append(bundle.Items, deps...)
		}

		bundle.Items = append(bundle.Items, collectTopics(repos)...)
		bundle.Items = append(bundle.Items, collectLanguages(repos)...)

		starred, err := o.api.ListStarred(ctx, candidateID)
		if err != nil {
			// Own repo names still count; only the starred half is lost.
			o.logger.Warn("starred listing failed, using own repository names only", map[string]interface{}{
				"candidateId": candidateID,
				"error":       err.Error(),
			})
			starred = nil
		}
		bundle.Items = append(bundle.Items, collectNames(repos, starred)...)
	}

	if profile != nil {
		bundle.Items = append(bundle.Items, collectBio(*profile)...)
	} else {
		bundle.FailedSignals = append(bundle.FailedSignals, models.SignalBio)
	}

	if len(bundle.FailedSignals) == len(models.KnownSignals) {
		metrics.FallbackTotal.WithLabelValues("failed").Inc()
		return nil, cerrors.NewCandidateCollectionFailedError(candidateID, repoErr)
	}

	if len(bundle.FailedSignals) > 0 {
		bundle.Method = models.MethodFallback
	}

	metrics.FallbackTotal.WithLabelValues(string(bundle.Method)).Inc()

	if bundle.Method == models.MethodPrimary {
		o.cache.PutCandidate(ctx, candidateID, bundle, profile)
	}

	return bundle, nil
}
