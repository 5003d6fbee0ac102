package reconciler

import (
	"sync"
	"time"
)

// Progress describes how far a run has come
type Progress struct {
	Stage              string        `json:"stage"`
	Completed          int           `json:"completed"`
	Total              int           `json:"total"`
	Elapsed            time.Duration `json:"elapsed"`
	EstimatedRemaining time.Duration `json:"estimated_remaining"`
	Failed             bool          `json:"failed,omitempty"`
}

// PercentComplete returns the share of completed stages
func (p Progress) PercentComplete() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total) * 100
}

// ProgressCallback is called after each pipeline stage
type ProgressCallback func(Progress)

type progressNotifier struct {
	mu        sync.RWMutex
	callbacks []ProgressCallback
}

func (pn *progressNotifier) add(fn ProgressCallback) {
	if fn == nil {
		return
	}
	pn.mu.Lock()
	defer pn.mu.Unlock()
	pn.callbacks = append(pn.callbacks, fn)
}

func (pn *progressNotifier) notify(p Progress) {
	if p.Completed > 0 && p.Completed < p.Total {
		perStage := p.Elapsed / time.Duration(p.Completed)
		p.EstimatedRemaining = perStage * time.Duration(p.Total-p.Completed)
	}

	pn.mu.RLock()
	defer pn.mu.RUnlock()
	for _, fn := range pn.callbacks {
		fn(p)
	}
}
