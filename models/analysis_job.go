package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AnalysisJobStatus represents the status of an analysis job
type AnalysisJobStatus string

const (
	JobStatusPending    AnalysisJobStatus = "pending"
	JobStatusInProgress AnalysisJobStatus = "in_progress"
	JobStatusCompleted  AnalysisJobStatus = "completed"
	JobStatusFailed     AnalysisJobStatus = "failed"
)

// AnalysisStage is one state of the linear run state machine
type AnalysisStage string

const (
	StageLoadTemplate  AnalysisStage = "load_template"
	StageExtractText   AnalysisStage = "extract_text"
	StageChunk         AnalysisStage = "chunk"
	StageAnalyzeChunks AnalysisStage = "analyze_chunks"
	StageAggregate     AnalysisStage = "aggregate"
)

// AnalysisStages lists the stages in execution order
func AnalysisStages() []AnalysisStage {
	return []AnalysisStage{StageLoadTemplate, StageExtractText, StageChunk, StageAnalyzeChunks, StageAggregate}
}

// JobStep represents a step in the analysis process
type JobStep struct {
	Name   AnalysisStage `json:"name"`
	Status string        `json:"status"` // "pending", "in_progress", "completed", "failed"
}

// JobSteps represents a list of job steps
type JobSteps []JobStep

// NewJobSteps returns every stage in pending state
func NewJobSteps() JobSteps {
	steps := make(JobSteps, 0, len(AnalysisStages()))
	for _, s := range AnalysisStages() {
		steps = append(steps, JobStep{Name: s, Status: "pending"})
	}
	return steps
}

// Value implements driver.Valuer for JSONB
func (s JobSteps) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB
func (s *JobSteps) Scan(value interface{}) error {
	if value == nil {
		*s = make(JobSteps, 0)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*s = make(JobSteps, 0)
		return nil
	}

	if len(bytes) == 0 {
		*s = make(JobSteps, 0)
		return nil
	}

	return json.Unmarshal(bytes, s)
}

// AnalysisJob represents one submitted document analysis
type AnalysisJob struct {
	ID           uuid.UUID         `json:"job_id"`
	FileID       *uuid.UUID        `json:"file_id,omitempty"`
	Filename     string            `json:"filename"`
	Mode         AnalysisMode      `json:"selection"`
	UserPrompt   string            `json:"prompt,omitempty"`
	Status       AnalysisJobStatus `json:"status"`
	Progress     int               `json:"progress"`
	CurrentStep  *string           `json:"current_step,omitempty"`
	Steps        JobSteps          `json:"steps"`
	Result       *AggregatedResult `json:"-"`
	ErrorMessage *string           `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// FindingCount is the number of findings or PII instances in a finished job
func (j *AnalysisJob) FindingCount() int {
	if j.Result == nil {
		return 0
	}
	return len(j.Result.Findings) + len(j.Result.PIIInstances)
}
