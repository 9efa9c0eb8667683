// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package library

import (
	"path/filepath"
	"sort"
	"strings"
)

// PathMapper rewrites media paths as the media server sees them into paths
// as this process should write them into pointer files. It is used when the
// server runs in a container with different mount points.
type PathMapper struct {
	prefixes []string
	mapping  map[string]string
}

// NewPathMapper builds a mapper from server prefix to replacement prefix.
// The longest matching prefix wins.
func NewPathMapper(m map[string]string) *PathMapper {
	pm := &PathMapper{mapping: make(map[string]string, len(m))}
	for from, to := range m {
		if from == "" {
			continue
		}
		pm.mapping[from] = to
		pm.prefixes = append(pm.prefixes, from)
	}
	sort.Slice(pm.prefixes, func(i, j int) bool {
		if len(pm.prefixes[i]) != len(pm.prefixes[j]) {
			return len(pm.prefixes[i]) > len(pm.prefixes[j])
		}
		return pm.prefixes[i] < pm.prefixes[j]
	})
	return pm
}

// Map returns p with its longest matching prefix replaced. A prefix only
// matches on a path segment boundary.
func (pm *PathMapper) Map(p string) string {
	if pm == nil {
		return p
	}
	for _, from := range pm.prefixes {
		if !strings.HasPrefix(p, from) {
			continue
		}
		rest := p[len(from):]
		if rest != "" && !strings.HasSuffix(from, "/") && rest[0] != '/' && rest[0] != '\\' {
			continue
		}
		return pm.mapping[from] + rest
	}
	return p
}

// Dir is the on-disk directory of one generated library:
// root/<user id>/<leaf>.
func Dir(root, userID, leaf string) string {
	return filepath.Join(root, sanitizeName(userID), sanitizeName(leaf))
}
