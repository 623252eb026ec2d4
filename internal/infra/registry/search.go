package registry

import (
	"regexp"
	"slices"
	"sort"
	"strings"

	"golang.org/x/mod/semver"

	"mcpq/internal/domain"
)

// FindTools returns copies of all tools matching every set predicate of the
// filter.
func (r *Registry) FindTools(filter domain.ToolFilter) []domain.ToolMetadata {
	var namePattern *regexp.Regexp
	if filter.NamePattern != "" && filter.NameRegex {
		compiled, err := regexp.Compile(filter.NamePattern)
		if err != nil {
			// An uncompilable pattern matches nothing.
			return nil
		}
		namePattern = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ToolMetadata
	for _, meta := range r.tools {
		if !matches(*meta, filter, namePattern) {
			continue
		}
		out = append(out, *meta)
	}
	return out
}

func matches(meta domain.ToolMetadata, filter domain.ToolFilter, namePattern *regexp.Regexp) bool {
	if namePattern != nil {
		if !namePattern.MatchString(meta.Name) {
			return false
		}
	} else if filter.NamePattern != "" && !strings.Contains(meta.Name, filter.NamePattern) {
		return false
	}
	if filter.Category != "" && meta.Category != filter.Category {
		return false
	}
	for _, tag := range filter.Tags {
		if !slices.Contains(meta.Tags, tag) {
			return false
		}
	}
	for _, perm := range filter.RequiredPermissions {
		if !slices.Contains(meta.Permissions, perm) {
			return false
		}
	}
	if filter.Enabled != nil && meta.Enabled != *filter.Enabled {
		return false
	}
	if filter.Loaded != nil && meta.Loaded != *filter.Loaded {
		return false
	}
	return true
}

// GetToolsByCategory lists tools in the given category.
func (r *Registry) GetToolsByCategory(category string) []domain.ToolMetadata {
	return r.FindTools(domain.ToolFilter{Category: category})
}

// GetToolsByTag lists tools carrying the given tag.
func (r *Registry) GetToolsByTag(tag string) []domain.ToolMetadata {
	return r.FindTools(domain.ToolFilter{Tags: []string{tag}})
}

// SortTools orders the given tools by the chosen key. Tools that have never
// been used always sort last under the usage-derived keys, regardless of
// direction.
func SortTools(tools []domain.ToolMetadata, key domain.ToolSortKey, descending bool) []domain.ToolMetadata {
	sorted := append([]domain.ToolMetadata(nil), tools...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if key != domain.SortByName {
			aUsed, bUsed := a.UsageCount > 0, b.UsageCount > 0
			if aUsed != bUsed {
				return aUsed
			}
		}
		less := false
		switch key {
		case domain.SortByUsageCount:
			if a.UsageCount == b.UsageCount {
				return false
			}
			less = a.UsageCount < b.UsageCount
		case domain.SortByLastUsed:
			if a.LastUsedAt.Equal(b.LastUsedAt) {
				return false
			}
			less = a.LastUsedAt.Before(b.LastUsedAt)
		case domain.SortByAverageExecutionTime:
			if a.AverageExecutionTime == b.AverageExecutionTime {
				return false
			}
			less = a.AverageExecutionTime < b.AverageExecutionTime
		default:
			if a.Name == b.Name {
				return false
			}
			less = a.Name < b.Name
		}
		if descending {
			return !less
		}
		return less
	})
	return sorted
}

// CheckVersionCompatibility compares the tool's declared version against a
// required minimum using semantic-version ordering. Missing tools or
// undeclared versions yield an unknown status.
func (r *Registry) CheckVersionCompatibility(toolID, minimum string) domain.VersionCompatibility {
	r.mu.Lock()
	meta, ok := r.tools[toolID]
	var current string
	if ok {
		current = meta.Version
	}
	r.mu.Unlock()

	out := domain.VersionCompatibility{
		Status:  domain.VersionUnknown,
		Current: current,
		Minimum: minimum,
	}
	if !ok || current == "" {
		return out
	}
	currentSemver := canonicalVersion(current)
	minimumSemver := canonicalVersion(minimum)
	if currentSemver == "" || minimumSemver == "" {
		return out
	}
	if semver.Compare(currentSemver, minimumSemver) >= 0 {
		out.Status = domain.VersionCompatible
	} else {
		out.Status = domain.VersionIncompatible
	}
	return out
}

func canonicalVersion(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if !strings.HasPrefix(value, "v") {
		value = "v" + value
	}
	return semver.Canonical(value)
}
