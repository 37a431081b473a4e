// Package pipeline holds the request-scoped data model shared by the
// documentation producer and the code-generation consumer.
package pipeline

import (
	"fmt"
	"strings"
)

// Status is the outcome of one generation step for one source unit.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	return s == StatusOK || s == StatusFailed
}

// ArtifactKind distinguishes generated boilerplate from generated tests.
type ArtifactKind string

const (
	KindBoilerplate ArtifactKind = "boilerplate"
	KindTest        ArtifactKind = "test"
)

// Valid reports whether k is a known artifact kind.
func (k ArtifactKind) Valid() bool {
	return k == KindBoilerplate || k == KindTest
}

// SourceUnit is one named text blob extracted from an archive. Name is unique
// within the archive it came from. Rejected is set when the entry was eligible
// but could not be used; such a unit still yields a failed record.
type SourceUnit struct {
	Name     string
	Content  string
	Rejected error
}

// DocumentationRecord is the documentation outcome for one SourceUnit.
type DocumentationRecord struct {
	UnitName string
	Body     string
	Status   Status
	Error    string
}

// OK reports whether documentation generation succeeded for the unit.
func (r DocumentationRecord) OK() bool {
	return r.Status == StatusOK
}

// RecordSet is an ordered sequence of documentation records. Order always
// equals the extraction order of the source units.
type RecordSet []DocumentationRecord

// Names returns unit names in set order.
func (rs RecordSet) Names() []string {
	names := make([]string, len(rs))
	for i, rec := range rs {
		names[i] = rec.UnitName
	}
	return names
}

// Failed returns the number of records whose status is failed.
func (rs RecordSet) Failed() int {
	n := 0
	for _, rec := range rs {
		if !rec.OK() {
			n++
		}
	}
	return n
}

// Validate checks the set-level invariants: every record names a unit, names
// are unique and every status is known.
func (rs RecordSet) Validate() error {
	seen := make(map[string]struct{}, len(rs))
	for i, rec := range rs {
		if rec.UnitName == "" {
			return fmt.Errorf("%w: record %d has no unit name", ErrMalformedPayload, i)
		}
		if _, dup := seen[rec.UnitName]; dup {
			return fmt.Errorf("%w: duplicate unit %q", ErrMalformedPayload, rec.UnitName)
		}
		seen[rec.UnitName] = struct{}{}
		if !rec.Status.Valid() {
			return fmt.Errorf("%w: unit %q has unknown status %q", ErrMalformedPayload, rec.UnitName, rec.Status)
		}
	}
	return nil
}

// GenerationRequest is the payload handed from the producer to the consumer.
type GenerationRequest struct {
	Credential    string
	Records       RecordSet
	GenerateTests bool
}

// Validate enforces the request invariants in the order the consumer reports
// them: credential first, then a non-empty and well-formed record set.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Credential) == "" {
		return ErrInvalidCredential
	}
	if len(r.Records) == 0 {
		return ErrEmptyRecordSet
	}
	return r.Records.Validate()
}

// CodeArtifact is one generated output item for one source unit.
type CodeArtifact struct {
	UnitName string       `json:"unit_name"`
	Kind     ArtifactKind `json:"kind"`
	Body     string       `json:"body"`
	Status   Status       `json:"status"`
	Error    string       `json:"error,omitempty"`
}

// OK reports whether the artifact was generated successfully.
func (a CodeArtifact) OK() bool {
	return a.Status == StatusOK
}

// ResultBundle is the exportable outcome of one pipeline run. It is built once
// by the aggregator and must be treated as read-only afterwards.
type ResultBundle struct {
	Artifacts []CodeArtifact `json:"artifacts"`
	Partial   bool           `json:"partial"`
}

// Count returns how many artifacts of the given kind the bundle holds.
func (b ResultBundle) Count(kind ArtifactKind) int {
	n := 0
	for _, a := range b.Artifacts {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

// Outcome describes a completed run for presentation.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomePartial   Outcome = "partial"
)

// Outcome distinguishes a fully successful run from one with omissions.
func (b ResultBundle) Outcome() Outcome {
	if b.Partial {
		return OutcomePartial
	}
	return OutcomeSucceeded
}
