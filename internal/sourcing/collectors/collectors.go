// Package collectors gathers per-candidate raw evidence from the upstream
// platform and assembles it into evidence bundles, substituting a cheaper
// signal combination when the primary dependency-manifest source fails.
package collectors

import (
	"context"
	"encoding/json"
	"strings"

	cerrors "githire/internal/common/errors"
	"githire/internal/models"
)

// manifestFiles are the dependency manifests inspected per repository, in
// probe order.
var manifestFiles = []string{
	"requirements.txt",
	"package.json",
	"go.mod",
}

// maxManifestRepos bounds per-candidate manifest probing; manifests are the
// most expensive signal (one contents call per probe).
const maxManifestRepos = 5

// ManifestSource fetches raw file contents from a repository.
type ManifestSource interface {
	GetFileContents(ctx context.Context, repoFullName, path string) (string, error)
}

// collectDependencies probes manifest files across the candidate's top
// repositories and returns one evidence item per dependency found. A probe
// that 404s is a normal miss; the signal as a whole fails only when every
// probe errored and none succeeded.
func collectDependencies(ctx context.Context, source ManifestSource, repos []models.Repository) ([]models.EvidenceItem, error) {
	var items []models.EvidenceItem
	var lastErr error
	attempted := 0
	succeeded := 0

	inspected := 0
	for _, repo := range repos {
		if repo.Fork {
			continue
		}
		if inspected >= maxManifestRepos {
			break
		}
		inspected++

		for _, manifest := range manifestFiles {
			attempted++
			content, err := source.GetFileContents(ctx, repo.FullName, manifest)
			if err != nil {
				if cerrors.HasCode(err, cerrors.ErrCodePermanentUpstream) {
					succeeded++ // a clean 404 is an answer, not a failure
					continue
				}
				lastErr = err
				continue
			}
			succeeded++
			for _, dep := range parseManifest(manifest, content) {
				items = append(items, models.EvidenceItem{
					Kind:   models.SignalDependency,
					Source: repo.FullName,
					Value:  dep,
				})
			}
		}
	}

	if attempted > 0 && succeeded == 0 {
		return nil, cerrors.NewPartialCollectorFailureError(string(models.SignalDependency), lastErr)
	}
	return items, nil
}

// parseManifest extracts dependency names from a known manifest format.
func parseManifest(filename, content string) []string {
	switch filename {
	case "requirements.txt":
		return parseRequirements(content)
	case "package.json":
		return parsePackageJSON(content)
	case "go.mod":
		return parseGoMod(content)
	default:
		return nil
	}
}

func parseRequirements(content string) []string {
	var deps []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		// Strip version specifiers and extras: "pandas[all]>=1.5" -> "pandas".
		for _, sep := range []string{"==", ">=", "<=", "~=", "!=", ">", "<", ";", " ", "["} {
			if idx := strings.Index(line, sep); idx >= 0 {
				line = line[:idx]
			}
		}
		if line != "" {
			deps = append(deps, strings.ToLower(line))
		}
	}
	return deps
}

func parsePackageJSON(content string) []string {
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal([]byte(content), &pkg); err != nil {
		return nil
	}
	var deps []string
	for name := range pkg.Dependencies {
		deps = append(deps, strings.ToLower(name))
	}
	for name := range pkg.DevDependencies {
		deps = append(deps, strings.ToLower(name))
	}
	return deps
}

func parseGoMod(content string) []string {
	var deps []string
	inBlock := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "require ("):
			inBlock = true
			continue
		case inBlock && line == ")":
			inBlock = false
			continue
		}

		var modPath string
		if inBlock && line != "" && !strings.HasPrefix(line, "//") {
			modPath = strings.Fields(line)[0]
		} else if strings.HasPrefix(line, "require ") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				modPath = fields[1]
			}
		}
		if modPath == "" {
			continue
		}
		// Both the full path and its last element are useful match targets.
		deps = append(deps, strings.ToLower(modPath))
		if idx := strings.LastIndex(modPath, "/"); idx >= 0 && idx < len(modPath)-1 {
			deps = append(deps, strings.ToLower(modPath[idx+1:]))
		}
	}
	return deps
}

// collectTopics extracts repository topic tags.
func collectTopics(repos []models.Repository) []models.EvidenceItem {
	var items []models.EvidenceItem
	for _, repo := range repos {
		for _, topic := range repo.Topics {
			items = append(items, models.EvidenceItem{
				Kind:   models.SignalTopics,
				Source: repo.FullName,
				Value:  strings.ToLower(topic),
			})
		}
	}
	return items
}

// collectLanguages extracts primary repository languages.
func collectLanguages(repos []models.Repository) []models.EvidenceItem {
	var items []models.EvidenceItem
	for _, repo := range repos {
		if repo.Language == "" {
			continue
		}
		items = append(items, models.EvidenceItem{
			Kind:   models.SignalLanguages,
			Source: repo.FullName,
			Value:  strings.ToLower(repo.Language),
		})
	}
	return items
}

// collectBio wraps the profile bio as a single free-text evidence item.
func collectBio(profile models.RawProfile) []models.EvidenceItem {
	if strings.TrimSpace(profile.Bio) == "" {
		return nil
	}
	return []models.EvidenceItem{{
		Kind:   models.SignalBio,
		Source: "profile:" + profile.Login,
		Value:  profile.Bio,
	}}
}

// collectNames extracts own and starred repository names.
func collectNames(repos, starred []models.Repository) []models.EvidenceItem {
	var items []models.EvidenceItem
	for _, repo := range repos {
		items = append(items, models.EvidenceItem{
			Kind:   models.SignalRepoNames,
			Source: repo.FullName,
			Value:  strings.ToLower(repo.Name),
		})
	}
	for _, repo := range starred {
		items = append(items, models.EvidenceItem{
			Kind:   models.SignalRepoNames,
			Source: "starred:" + repo.FullName,
			Value:  strings.ToLower(repo.Name),
		})
	}
	return items
}
