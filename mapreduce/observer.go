package mapreduce

import "time"

// Observer provides hooks to watch index maintenance.
// Implement this interface to track progress or export metrics.
type Observer interface {
	// BatchCommitted is called after a batch of changes is persisted.
	BatchCommitted(view string, seq uint64, changes, records int)
	// MapFailed is called when a map function fails for a document.
	MapFailed(view string, docID string)
	// UpdateFinished is called when a maintenance pass catches up.
	UpdateFinished(view string, seq uint64, changes int, elapsed time.Duration)
}

// noopObserver is a no-op implementation of Observer
type noopObserver struct{}

var _ Observer = (*noopObserver)(nil)

func (n *noopObserver) BatchCommitted(_ string, _ uint64, _, _ int)               {}
func (n *noopObserver) MapFailed(_ string, _ string)                              {}
func (n *noopObserver) UpdateFinished(_ string, _ uint64, _ int, _ time.Duration) {}

// multiObserver fans hooks out to several observers.
type multiObserver []Observer

func (m multiObserver) BatchCommitted(view string, seq uint64, changes, records int) {
	for _, o := range m {
		o.BatchCommitted(view, seq, changes, records)
	}
}

func (m multiObserver) MapFailed(view string, docID string) {
	for _, o := range m {
		o.MapFailed(view, docID)
	}
}

func (m multiObserver) UpdateFinished(view string, seq uint64, changes int, elapsed time.Duration) {
	for _, o := range m {
		o.UpdateFinished(view, seq, changes, elapsed)
	}
}
