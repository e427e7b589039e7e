package pipeline

import (
	"github.com/SiriusScan/go-ingest/sirius"
	"github.com/SiriusScan/go-ingest/sirius/parser"
)

// Stage is a state of the per-upload state machine.
type Stage string

const (
	StageReceived              Stage = "received"
	StageFormatChecked         Stage = "format_checked"
	StageStructurallyValidated Stage = "structurally_validated"
	StageExtracting            Stage = "extracting"
	StageNormalizing           Stage = "normalizing"
	StageCompleted             Stage = "completed"
	StageFailed                Stage = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Upload is one uploaded report handed to the orchestrator.
type Upload struct {
	FileID    uint
	Filename  string
	Content   []byte
	Tool      sirius.ToolDescriptor
	AuthToken string
}

// Rejection records why a raw finding did not survive normalization.
type Rejection struct {
	Index  int    `json:"index"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

// BatchResult is the outcome of processing one upload. It is read-only once
// Process returns.
type BatchResult struct {
	FileID     uint                   `json:"file_id,omitempty"`
	Filename   string                 `json:"filename"`
	Format     string                 `json:"format,omitempty"`
	Stage      Stage                  `json:"stage"`
	Findings   []sirius.Pair          `json:"findings"`
	Rejections []Rejection            `json:"rejections,omitempty"`
	Extraction parser.ExtractionStats `json:"extraction"`
}

// Accepted is the number of canonical findings.
func (b *BatchResult) Accepted() int {
	return len(b.Findings)
}

// Rejected is the number of raw findings rejected during normalization.
func (b *BatchResult) Rejected() int {
	return len(b.Rejections)
}

// Response renders the wire-level pipeline result.
func (b *BatchResult) Response() sirius.ParseResponse {
	findings := b.Findings
	if findings == nil {
		findings = []sirius.Pair{}
	}
	return sirius.ParseResponse{Findings: findings}
}
