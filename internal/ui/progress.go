package ui

import (
	"sync"
	"time"
)

// ProgressTracker holds the state shown by the live view.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu          sync.RWMutex
	stage       Stage
	current     int
	total       int
	chunks      int
	currentFile string
	startTime   time.Time
	errors      []ErrorEvent

	// lastETA smooths the estimate between updates.
	lastETA time.Duration
}

// ProgressStats is a snapshot of a ProgressTracker.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Chunks      int
	Progress    float64
	ETA         time.Duration
	Elapsed     time.Duration
	CurrentFile string
	ErrorCount  int
}

// NewProgressTracker creates a tracker in StageScanning.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{stage: StageScanning, startTime: time.Now()}
}

// SetStage moves to stage with total expected items.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.total = total
	p.current = 0
	p.lastETA = 0
}

// Update records progress within the current stage.
func (p *ProgressTracker) Update(event ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.Stage != p.stage {
		p.stage = event.Stage
		p.lastETA = 0
	}
	if event.Total > 0 {
		p.total = event.Total
	}
	p.current = event.Current
	p.chunks += event.Chunks
	if event.CurrentFile != "" {
		p.currentFile = event.CurrentFile
	}
}

// AddError records a failed file.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, event)
}

// Errors returns the recorded errors.
func (p *ProgressTracker) Errors() []ErrorEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]ErrorEvent(nil), p.errors...)
}

// Stats returns a snapshot. It takes the write lock because the ETA
// estimate is smoothed against the previous one.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	progress := 0.0
	if p.total > 0 {
		progress = min(float64(p.current)/float64(p.total), 1.0)
	}
	return ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		Chunks:      p.chunks,
		Progress:    progress,
		ETA:         p.calculateETA(progress),
		Elapsed:     time.Since(p.startTime),
		CurrentFile: p.currentFile,
		ErrorCount:  len(p.errors),
	}
}

// etaSmoothingFactor is the weight of a new estimate against the last one.
const etaSmoothingFactor = 0.3

// calculateETA must be called with p.mu held.
func (p *ProgressTracker) calculateETA(progress float64) time.Duration {
	if progress <= 0 || progress >= 1.0 {
		return 0
	}
	elapsed := time.Since(p.startTime)
	remaining := time.Duration(float64(elapsed)/progress) - elapsed
	if remaining < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = remaining
		return remaining
	}
	p.lastETA = time.Duration(etaSmoothingFactor*float64(remaining) + (1-etaSmoothingFactor)*float64(p.lastETA))
	return p.lastETA
}
