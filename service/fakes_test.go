package service

import (
	"context"
	"sync"
	"testing/fstest"

	"sentinel-edge/models"
)

// scriptedInvoker replays responses in order and repeats the last one
type scriptedInvoker struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	messages  []string
}

func (s *scriptedInvoker) Invoke(_ context.Context, message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	s.messages = append(s.messages, message)

	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if len(s.responses) == 0 {
		return "", nil
	}
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func (s *scriptedInvoker) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) ExtractText(context.Context, string) (string, error) {
	return f.text, f.err
}

type fakeSearcher struct {
	mu      sync.Mutex
	matches []models.ReferenceMatch
	err     error
	calls   int
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, k int) ([]models.ReferenceMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

func testTemplates() *TemplateStore {
	return NewTemplateStoreFS(fstest.MapFS{
		"legal_risk_scoring.txt":      {Data: []byte("  Score the legal risk.\n")},
		"pii_masking.txt":             {Data: []byte("Find personal data.")},
		"vulnerability_detection.txt": {Data: []byte("Find vulnerabilities.")},
	})
}
