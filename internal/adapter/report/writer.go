package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/dayanaadylkhanova/pow-orchestrator/internal/entity"
)

// Writer emits each result as one JSON line.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (w *Writer) Report(_ context.Context, res entity.ReconciledResult) error {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
