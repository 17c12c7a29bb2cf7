package api

import (
	"sync"

	"github.com/licitatech/pncp-harvester/internal/pncp"
)

const defaultHistorySize = 50

// runHistory keeps the most recent run summaries in memory, newest first,
// bounded to a fixed capacity.
type runHistory struct {
	mu   sync.RWMutex
	runs []pncp.RunSummary
	cap  int
}

func newRunHistory(capacity int) *runHistory {
	if capacity <= 0 {
		capacity = defaultHistorySize
	}
	return &runHistory{cap: capacity}
}

func (h *runHistory) add(summary pncp.RunSummary) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.runs = append([]pncp.RunSummary{summary}, h.runs...)
	if len(h.runs) > h.cap {
		h.runs = h.runs[:h.cap]
	}
}

func (h *runHistory) list() []pncp.RunSummary {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]pncp.RunSummary(nil), h.runs...)
}

func (h *runHistory) byID(runID string) (pncp.RunSummary, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, run := range h.runs {
		if run.RunID == runID {
			return run, true
		}
	}
	return pncp.RunSummary{}, false
}
