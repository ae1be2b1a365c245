package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/poiesic/quicksearch/mapreduce"
)

// ProgressTracker prints a single self-overwriting progress line.
// A zero total means the total is unknown and no percentage is shown.
type ProgressTracker struct {
	writer         io.Writer
	unit           string
	total          int
	current        int
	reportInterval int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewProgressTracker creates a new progress tracker reporting every
// reportInterval units.
func NewProgressTracker(writer io.Writer, unit string, reportInterval int) *ProgressTracker {
	if reportInterval < 1 {
		reportInterval = 1
	}
	return &ProgressTracker{
		writer:         writer,
		unit:           unit,
		reportInterval: reportInterval,
	}
}

// Start begins tracking progress towards total.
func (p *ProgressTracker) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.total = total
	p.current = 0
	p.lastReported = 0
}

// Update sets the current progress to the specified value.
func (p *ProgressTracker) Update(current int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	if p.total > 0 && current > p.total {
		current = p.total
	}
	p.current = current

	// Report if we've crossed a report interval
	if p.current-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.current
	}
}

// Finish moves a known total to completion and prints the final line.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	if p.total > 0 {
		p.current = p.total
	}
	p.report()
	fmt.Fprintln(p.writer) // Print newline after final progress
	p.started = false
}

// report prints the current progress. Must be called with lock held.
func (p *ProgressTracker) report() {
	rate := 0.0
	if elapsed := time.Since(p.startTime).Seconds(); elapsed > 0 {
		rate = float64(p.current) / elapsed
	}

	if p.total == 0 {
		fmt.Fprintf(p.writer, "\rProgress: %d - %.1f %s/s", p.current, rate, p.unit)
		return
	}
	percentage := float64(p.current) / float64(p.total) * 100.0
	fmt.Fprintf(p.writer, "\rProgress: %d/%d (%.1f%%) - %.1f %s/s",
		p.current, p.total, percentage, rate, p.unit)
}

// indexProgress reports index maintenance as the position in the change
// feed of the collection.
type indexProgress struct {
	tracker *ProgressTracker
}

var _ mapreduce.Observer = (*indexProgress)(nil)

func (ip *indexProgress) BatchCommitted(_ string, seq uint64, _, _ int) {
	ip.tracker.Update(int(seq))
}

func (ip *indexProgress) MapFailed(_ string, _ string) {}

func (ip *indexProgress) UpdateFinished(_ string, _ uint64, _ int, _ time.Duration) {
	ip.tracker.Finish()
}
