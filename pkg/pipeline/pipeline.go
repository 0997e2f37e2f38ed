// Package pipeline runs named steps in sequence over a shared state.
package pipeline

import (
	"fmt"
	"time"

	"github.com/a2lobf/a2lobf/pkg/logflags"
)

// Step is a unit of work of a pipeline. Run mutates the shared state and
// returns an error to stop the pipeline.
type Step[S any] interface {
	Name() string
	Run(state S) error
}

type funcStep[S any] struct {
	name string
	fn   func(S) error
}

func (s funcStep[S]) Name() string      { return s.name }
func (s funcStep[S]) Run(state S) error { return s.fn(state) }

// Func returns a step running fn.
func Func[S any](name string, fn func(S) error) Step[S] {
	return funcStep[S]{name: name, fn: fn}
}

// Pipeline is an ordered list of steps.
type Pipeline[S any] struct {
	steps []Step[S]
	log   logflags.Logger
}

// New returns an empty pipeline logging through log, which may be nil.
func New[S any](log logflags.Logger) *Pipeline[S] {
	return &Pipeline[S]{log: log}
}

// Add appends steps to the pipeline.
func (p *Pipeline[S]) Add(steps ...Step[S]) *Pipeline[S] {
	p.steps = append(p.steps, steps...)
	return p
}

// Steps returns the names of the steps in execution order.
func (p *Pipeline[S]) Steps() []string {
	r := make([]string, len(p.steps))
	for i, s := range p.steps {
		r[i] = s.Name()
	}
	return r
}

// Execute runs the steps in order. The first error stops the pipeline and
// is returned wrapped with the name of the failing step.
func (p *Pipeline[S]) Execute(state S) error {
	for _, step := range p.steps {
		start := time.Now()
		err := step.Run(state)
		if p.log != nil {
			p.log.WithFields(logflags.Fields{"step": step.Name(), "elapsed": time.Since(start)}).Debugf("step done")
		}
		if err != nil {
			return fmt.Errorf("%s: %w", step.Name(), err)
		}
	}
	return nil
}
