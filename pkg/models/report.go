package models

import (
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Analysis input sources
const (
	SourceDataset  = "dataset"
	SourceDeclared = "declared"
	SourceMSSQL    = "mssql"
	SourcePostgres = "postgres"
)

// AnalysisReport is the full outcome of analyzing one relation: the
// dependency set found, the classification verdict, and the decomposition
// when one was requested. It is created per request and never shared
// between runs.
type AnalysisReport struct {
	ID           uuid.UUID `json:"id" yaml:"id"`
	RelationName string    `json:"relation" yaml:"relation"`
	Source       string    `json:"source" yaml:"source"`
	RowsAnalyzed int       `json:"rows_analyzed" yaml:"rows_analyzed"`
	// Sampled is set when the rows are a sample rather than the full table,
	// so inferred dependencies are approximate.
	Sampled bool `json:"sampled,omitempty" yaml:"sampled,omitempty"`

	Attributes    []Attribute            `json:"attributes" yaml:"attributes"`
	FDs           []FunctionalDependency `json:"fds,omitempty" yaml:"fds,omitempty"`
	CandidateKeys []CandidateKey         `json:"candidate_keys,omitempty" yaml:"candidate_keys,omitempty"`

	Classification ClassificationResult `json:"classification" yaml:"classification"`
	Decomposition  *DecompositionResult `json:"decomposition,omitempty" yaml:"decomposition,omitempty"`

	StartedAt time.Time     `json:"started_at" yaml:"started_at"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// YAML renders the report for collaborators that consume YAML.
func (r *AnalysisReport) YAML() ([]byte, error) {
	return yaml.Marshal(r)
}

// BatchTableResult pairs one requested table with its report or failure.
// A failed table never aborts the rest of the batch.
type BatchTableResult struct {
	Table  string          `json:"table" yaml:"table"`
	Report *AnalysisReport `json:"report,omitempty" yaml:"report,omitempty"`
	Error  string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// BatchAnalysisReport aggregates per-table results in request order.
type BatchAnalysisReport struct {
	ID      uuid.UUID          `json:"id" yaml:"id"`
	Results []BatchTableResult `json:"results" yaml:"results"`
}

// Failed returns the names of tables whose analysis failed.
func (b *BatchAnalysisReport) Failed() []string {
	var out []string
	for _, r := range b.Results {
		if r.Error != "" {
			out = append(out, r.Table)
		}
	}
	return out
}
