// Package failure defines the error taxonomy shared by every reconciliation stage.
//
// Most failures are findings: they are recorded against the source or artifact
// they concern and the run continues. Only the run-level errors at the bottom
// of this file abort a run.
package failure

import (
	"errors"
	"fmt"
	"sort"
)

type Kind string

const (
	SourceUnavailable           Kind = "source_unavailable"
	ArtifactNotFound            Kind = "artifact_not_found"
	ArtifactUnreadable          Kind = "artifact_unreadable"
	SynthesisInvariantViolation Kind = "synthesis_invariant_violation"
	ReportWriteFailure          Kind = "report_write_failure"
)

// Sentinel errors, one per Kind, usable with errors.Is.
var (
	ErrSourceUnavailable  = errors.New("source unavailable")
	ErrArtifactNotFound   = errors.New("artifact not found")
	ErrArtifactUnreadable = errors.New("artifact unreadable")
	ErrInvariant          = errors.New("synthesis invariant violation")
	ErrReportWrite        = errors.New("report write failure")
)

// Run-level errors.
var (
	ErrNoSources          = errors.New("no registered source root is readable")
	ErrAllArtifactsFailed = errors.New("every requested artifact violated a synthesis invariant")
)

func (k Kind) sentinel() error {
	switch k {
	case SourceUnavailable:
		return ErrSourceUnavailable
	case ArtifactNotFound:
		return ErrArtifactNotFound
	case ArtifactUnreadable:
		return ErrArtifactUnreadable
	case SynthesisInvariantViolation:
		return ErrInvariant
	case ReportWriteFailure:
		return ErrReportWrite
	}
	return nil
}

// Failure is one recorded problem with enough detail to reproduce it.
type Failure struct {
	Kind     Kind   `json:"kind"`
	SourceID string `json:"source,omitempty"`
	Artifact string `json:"artifact,omitempty"`
	Message  string `json:"message"`
	cause    error
}

func New(kind Kind, sourceID, artifact string, cause error) *Failure {
	f := &Failure{Kind: kind, SourceID: sourceID, Artifact: artifact, cause: cause}
	if cause != nil {
		f.Message = cause.Error()
	} else if s := kind.sentinel(); s != nil {
		f.Message = s.Error()
	}
	return f
}

func (f *Failure) Error() string {
	switch {
	case f.SourceID != "" && f.Artifact != "":
		return fmt.Sprintf("%s [source=%s artifact=%s]: %s", f.Kind, f.SourceID, f.Artifact, f.Message)
	case f.SourceID != "":
		return fmt.Sprintf("%s [source=%s]: %s", f.Kind, f.SourceID, f.Message)
	case f.Artifact != "":
		return fmt.Sprintf("%s [artifact=%s]: %s", f.Kind, f.Artifact, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() []error {
	out := []error{}
	if s := f.Kind.sentinel(); s != nil {
		out = append(out, s)
	}
	if f.cause != nil {
		out = append(out, f.cause)
	}
	return out
}

// As extracts a *Failure from err, if any.
func As(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Sort orders failures by kind, source and artifact so reports are stable
// regardless of the order concurrent tasks finished in.
func Sort(fs []*Failure) {
	sort.SliceStable(fs, func(i, j int) bool {
		a, b := fs[i], fs[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		if a.Artifact != b.Artifact {
			return a.Artifact < b.Artifact
		}
		return a.Message < b.Message
	})
}

// Count tallies failures per kind.
func Count(fs []*Failure) map[Kind]int {
	out := make(map[Kind]int)
	for _, f := range fs {
		out[f.Kind]++
	}
	return out
}
