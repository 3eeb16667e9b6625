package service

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"sentinel-edge/models"
)

const (
	contextHeader      = "--- Relevant Context ---"
	chunkHeader        = "--- Document Chunk ---"
	instructionsHeader = "--- Additional Instructions ---"
)

var templateFiles = map[models.AnalysisMode]string{
	models.ModeVulnerabilityDetection: "vulnerability_detection.txt",
	models.ModeLegalRiskScoring:       "legal_risk_scoring.txt",
	models.ModePIIMasking:             "pii_masking.txt",
}

// TemplateStore loads one instruction file per analysis mode. Files are read
// on every Load so edits apply to the next run.
type TemplateStore struct {
	fsys fs.FS
}

// NewTemplateStore reads templates from a directory on disk
func NewTemplateStore(dir string) *TemplateStore {
	return &TemplateStore{fsys: os.DirFS(dir)}
}

// NewTemplateStoreFS reads templates from fsys
func NewTemplateStoreFS(fsys fs.FS) *TemplateStore {
	return &TemplateStore{fsys: fsys}
}

// Load returns the trimmed instruction text for mode
func (s *TemplateStore) Load(mode models.AnalysisMode) (string, error) {
	name, ok := templateFiles[mode]
	if !ok {
		return "", fmt.Errorf("%w %q, valid options: %v", ErrUnknownMode, mode, models.AnalysisModes())
	}

	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
		}
		return "", fmt.Errorf("failed to read template %s: %w", name, err)
	}

	return strings.TrimSpace(string(data)), nil
}

// AssemblePrompt builds the model message for one chunk: instruction, the
// retrieved references separated by blank lines, then the chunk itself
func AssemblePrompt(instruction string, references []string, chunk string) string {
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\n")
	b.WriteString(contextHeader)
	b.WriteString("\n")
	b.WriteString(strings.Join(references, "\n\n"))
	b.WriteString("\n\n")
	b.WriteString(chunkHeader)
	b.WriteString("\n")
	b.WriteString(chunk)
	return b.String()
}

// WithUserInstructions appends caller-supplied instructions to a template.
// Blank instructions leave the template unchanged.
func WithUserInstructions(instruction, userPrompt string) string {
	userPrompt = strings.TrimSpace(userPrompt)
	if userPrompt == "" {
		return instruction
	}
	return instruction + "\n\n" + instructionsHeader + "\n" + userPrompt
}
