package override

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/pitabwire/journeybff/internal/observability"
	"github.com/pitabwire/journeybff/model"
)

// candidate is one step override with the journey it is scoped to.
type candidate struct {
	journeyName string
	entry       *StepOverride
}

// snapshot is an immutable index of a loaded document.
type snapshot struct {
	steps    map[string][]candidate
	count    int
	checksum string
}

func newSnapshot(doc *Document, checksum string) *snapshot {
	s := &snapshot{steps: make(map[string][]candidate), checksum: checksum}
	if doc == nil {
		return s
	}
	for fi := range doc.Flows {
		flow := &doc.Flows[fi]
		for si := range flow.Steps {
			entry := &flow.Steps[si]
			s.steps[entry.JourneyStep] = append(s.steps[entry.JourneyStep], candidate{
				journeyName: flow.JourneyName,
				entry:       entry,
			})
			s.count++
		}
	}
	return s
}

// lookup prefers an entry scoped to journeyName over an unscoped one; within
// each group document order decides.
func (s *snapshot) lookup(journeyName, journeyStep string) (*StepOverride, bool) {
	var fallback *StepOverride
	for _, c := range s.steps[journeyStep] {
		switch {
		case c.journeyName == "":
			if fallback == nil {
				fallback = c.entry
			}
		case c.journeyName == journeyName:
			return c.entry, true
		}
	}
	return fallback, fallback != nil
}

// Registry serves the current override document. Reads are lock-free;
// Reload swaps the snapshot atomically and keeps the previous one on
// failure.
type Registry struct {
	snap    atomic.Pointer[snapshot]
	loader  *Loader
	path    string
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewRegistry creates an empty registry reading from path. An empty path
// means no overrides are configured.
func NewRegistry(loader *Loader, path string, logger *zap.Logger, metrics *observability.Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{loader: loader, path: path, logger: logger, metrics: metrics}
}

// Reload reads the document from disk and swaps it in.
func (r *Registry) Reload() error {
	if r.path == "" {
		r.Replace(nil, "")
		return nil
	}
	doc, checksum, err := r.loader.LoadFile(r.path)
	if err != nil {
		r.metrics.RecordOverrideReload("failure")
		r.logger.Error("override document reload failed",
			zap.String("path", r.path),
			zap.Error(err),
		)
		return fmt.Errorf("override reload: %w", err)
	}
	r.Replace(doc, checksum)
	r.metrics.RecordOverrideReload("success")
	r.logger.Info("override document loaded",
		zap.String("path", r.path),
		zap.Int("steps", r.StepCount()),
		zap.String("checksum", checksum),
	)
	return nil
}

// Replace installs doc as the current document.
func (r *Registry) Replace(doc *Document, checksum string) {
	s := newSnapshot(doc, checksum)
	r.snap.Store(s)
	r.metrics.SetOverrideStepsLoaded(float64(s.count))
}

// Loaded reports whether a document (possibly empty) has been installed.
func (r *Registry) Loaded() bool {
	return r.snap.Load() != nil
}

// Checksum returns the checksum of the current document.
func (r *Registry) Checksum() string {
	if s := r.snap.Load(); s != nil {
		return s.checksum
	}
	return ""
}

// StepCount returns the number of step overrides in the current document.
func (r *Registry) StepCount() int {
	if s := r.snap.Load(); s != nil {
		return s.count
	}
	return 0
}

// Lookup returns the override for journeyStep within journeyName.
func (r *Registry) Lookup(journeyName, journeyStep string) (*StepOverride, bool) {
	s := r.snap.Load()
	if s == nil {
		return nil, false
	}
	return s.lookup(journeyName, journeyStep)
}

// Resolve returns step with its override applied. Without a match the step
// is returned unchanged.
func (r *Registry) Resolve(step *model.Step, journeyName string) *model.Step {
	if step == nil {
		return nil
	}
	entry, ok := r.Lookup(journeyName, step.JourneyStep)
	if !ok {
		return step
	}
	r.metrics.RecordOverrideApplied(step.JourneyStep)
	return Apply(step, entry)
}
