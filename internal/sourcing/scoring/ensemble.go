// Package scoring turns a candidate's evidence bundle into per-skill
// confidence scores. Each signal contributes its configured weight when it
// matches; the weighted sum is clamped to 1.0 and compared against the
// qualification threshold.
package scoring

import (
	"sort"
	"strings"

	"githire/internal/common/config"
	"githire/internal/common/metrics"
	"githire/internal/models"
)

// Ensemble scores skills by combining independent evidence signals.
type Ensemble struct {
	weights   map[models.SignalKind]float64
	threshold float64
	// per-skill threshold overrides, keyed by lowercased skill name
	overrides map[string]float64
	aliases   map[string][]string
}

func NewEnsemble(cfg config.SourcingConfig) *Ensemble {
	weights := make(map[models.SignalKind]float64, len(cfg.SignalWeights))
	for name, w := range cfg.SignalWeights {
		weights[models.SignalKind(name)] = w
	}

	overrides := make(map[string]float64, len(cfg.SkillThresholds))
	for skill, th := range cfg.SkillThresholds {
		overrides[strings.ToLower(skill)] = th
	}

	aliases := make(map[string][]string, len(cfg.SkillAliases))
	for skill, list := range cfg.SkillAliases {
		lowered := make([]string, len(list))
		for i, a := range list {
			lowered[i] = strings.ToLower(a)
		}
		aliases[strings.ToLower(skill)] = lowered
	}

	return &Ensemble{
		weights:   weights,
		threshold: cfg.QualificationThreshold,
		overrides: overrides,
		aliases:   aliases,
	}
}

// Score evaluates every required skill against the candidate's evidence.
// A signal that failed during collection contributes zero; its weight is
// never redistributed, so a fallback-method candidate has a lower confidence
// ceiling than a primary one.
func (e *Ensemble) Score(skills []string, bundle *models.EvidenceBundle) []models.SkillConfidence {
	out := make([]models.SkillConfidence, 0, len(skills))
	for _, skill := range skills {
		out = append(out, e.scoreSkill(skill, bundle))
	}
	return out
}

func (e *Ensemble) scoreSkill(skill string, bundle *models.EvidenceBundle) models.SkillConfidence {
	terms := e.matchTerms(skill)

	sc := models.SkillConfidence{
		SkillName: skill,
		Signals:   make(map[string]float64, len(e.weights)),
	}

	var evidence []string
	for _, kind := range models.KnownSignals {
		weight, ok := e.weights[kind]
		if !ok || weight == 0 {
			continue
		}
		if bundle.SignalFailed(kind) {
			sc.Signals[string(kind)] = 0
			continue
		}

		contributed := 0.0
		for _, item := range bundle.ItemsOf(kind) {
			if !matchItem(kind, item.Value, terms) {
				continue
			}
			if contributed == 0 {
				contributed = weight
			}
			evidence = append(evidence, item.Source)
		}
		sc.Signals[string(kind)] = contributed
		sc.Confidence += contributed
	}

	if sc.Confidence > 1.0 {
		sc.Confidence = 1.0
	}

	sc.Qualified = sc.Confidence >= e.thresholdFor(skill)
	sc.Evidence = dedupe(evidence)

	metrics.SkillConfidence.Observe(sc.Confidence)
	return sc
}

// thresholdFor returns the per-skill override when configured, the global
// threshold otherwise.
func (e *Ensemble) thresholdFor(skill string) float64 {
	if th, ok := e.overrides[strings.ToLower(skill)]; ok {
		return th
	}
	return e.threshold
}

// matchTerms expands a skill into its alias set, lowercased.
func (e *Ensemble) matchTerms(skill string) []string {
	key := strings.ToLower(strings.TrimSpace(skill))
	terms := []string{key}
	terms = append(terms, e.aliases[key]...)
	return terms
}

// matchItem applies the per-signal matching rule: token equality for the
// structured signals, substring containment for free text.
func matchItem(kind models.SignalKind, value string, terms []string) bool {
	value = strings.ToLower(value)
	switch kind {
	case models.SignalBio, models.SignalRepoNames:
		for _, term := range terms {
			if strings.Contains(value, term) {
				return true
			}
		}
	default:
		for _, term := range terms {
			if value == term {
				return true
			}
		}
	}
	return false
}

func dedupe(sources []string) []string {
	if len(sources) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(sources))
	var out []string
	for _, s := range sources {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
