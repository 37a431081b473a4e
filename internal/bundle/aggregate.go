// Package bundle merges generated artifacts into a result bundle and exports
// it as a downloadable archive.
package bundle

import (
	"sort"

	"docforge/internal/domain/pipeline"
)

// Aggregate builds the ResultBundle for a run. Artifacts are ordered by the
// position of their unit in records, boilerplate before test within a unit;
// artifacts for units not in records keep their relative order at the end.
// Partial is set when any record or artifact failed.
func Aggregate(records pipeline.RecordSet, artifacts []pipeline.CodeArtifact) pipeline.ResultBundle {
	position := make(map[string]int, len(records))
	partial := false
	for i, record := range records {
		if _, seen := position[record.UnitName]; !seen {
			position[record.UnitName] = i
		}
		if !record.OK() {
			partial = true
		}
	}

	ordered := make([]pipeline.CodeArtifact, len(artifacts))
	copy(ordered, artifacts)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := rank(position, ordered[i].UnitName), rank(position, ordered[j].UnitName)
		if pi != pj {
			return pi < pj
		}
		return kindRank(ordered[i].Kind) < kindRank(ordered[j].Kind)
	})

	for _, a := range ordered {
		if !a.OK() {
			partial = true
			break
		}
	}

	return pipeline.ResultBundle{Artifacts: ordered, Partial: partial}
}

func rank(position map[string]int, unit string) int {
	if p, ok := position[unit]; ok {
		return p
	}
	return len(position)
}

func kindRank(kind pipeline.ArtifactKind) int {
	if kind == pipeline.KindBoilerplate {
		return 0
	}
	return 1
}
