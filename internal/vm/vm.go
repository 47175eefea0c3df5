// Package vm is the co-execution harness: it runs the functional
// interpreter and the pipelined core side by side over one shared bus
// and compares their architectural state after every retired
// instruction. The single-threaded batch loop and shutdown-flag shape
// are grounded on an os/signal channel racing a "done" channel around
// a CPU.Run()/Stop() pair; here the stop signal is a context.Context
// instead of a bool field, since that's the idiomatic Go equivalent for
// a loop an outer caller needs to cancel.
package vm

import (
	"context"
	"fmt"
	"sync"

	"vr4300vm/internal/interp"
	"vr4300vm/internal/pipeline"
	"vr4300vm/internal/vrtypes"
)

// StepResult is the result of advancing a Core by one unit of work: one
// architectural instruction for the functional model, one clock cycle
// for the pipelined model.
type StepResult struct {
	Retired   bool
	Faulted   bool
	Exception vrtypes.ExcCode
}

// Core is anything the harness can drive forward and inspect. Both
// *interp.Interp and *pipeline.Pipeline satisfy it via the adapters
// below; their underlying Step()/Cycle() result types already have the
// identical shape since both are built around the same CycleResult
// design.
type Core interface {
	Step() StepResult
	GPRs() [32]uint64
	HILO() (hi, lo uint64)
	PC() uint64
}

type funcCore struct{ *interp.Interp }

func (f funcCore) Step() StepResult {
	r := f.Interp.Step()
	return StepResult{Retired: r.Retired, Faulted: r.Faulted, Exception: r.Exception}
}

func (f funcCore) GPRs() [32]uint64 {
	var g [32]uint64
	for i := range g {
		g[i] = f.Regs.Get(vrtypes.RegGPR(uint32(i)))
	}
	return g
}

func (f funcCore) HILO() (uint64, uint64) {
	return f.Regs.Get(vrtypes.RegHI), f.Regs.Get(vrtypes.RegLO)
}

type pipeCore struct{ *pipeline.Pipeline }

func (p pipeCore) Step() StepResult {
	r := p.Pipeline.Cycle()
	return StepResult{Retired: r.Retired, Faulted: r.Faulted, Exception: r.Exception}
}

func (p pipeCore) GPRs() [32]uint64 {
	var g [32]uint64
	for i := range g {
		g[i] = p.Regs.Get(vrtypes.RegGPR(uint32(i)))
	}
	return g
}

func (p pipeCore) HILO() (uint64, uint64) {
	return p.Regs.Get(vrtypes.RegHI), p.Regs.Get(vrtypes.RegLO)
}

// WrapFunctional adapts a functional interpreter into a Core.
func WrapFunctional(i *interp.Interp) Core { return funcCore{i} }

// WrapPipeline adapts a pipelined core into a Core.
func WrapPipeline(p *pipeline.Pipeline) Core { return pipeCore{p} }

// VM drives one Core forward in batches, checking for cancellation
// between batches rather than on every single step, the same
// coarse-grained responsiveness tradeoff a CPU.Run() loop makes by
// checking a running flag once per decoded instruction.
type VM struct {
	Name      string
	Core      Core
	BatchSize int // steps per cancellation check; 0 means DefaultBatchSize

	// Mu, when non-nil, is locked around every Step(). Set it to the
	// same *sync.Mutex on both VM instances when they share one
	// *bus.Controller and run as concurrent goroutines, serialised by
	// one process-wide mutex. A Harness-driven comparison run needs no
	// mutex at all: it steps both cores from one goroutine, so there is
	// no concurrent bus access to guard.
	Mu *sync.Mutex

	running bool
	steps   uint64
}

// DefaultBatchSize is the configurable step-batch size's default.
const DefaultBatchSize = 4096

// New creates a VM around core.
func New(name string, core Core) *VM {
	return &VM{Name: name, Core: core, BatchSize: DefaultBatchSize}
}

// Stop requests the run loop exit at its next batch boundary.
func (v *VM) Stop() { v.running = false }

// Steps returns the number of Step() calls issued so far.
func (v *VM) Steps() uint64 { return v.steps }

// Run advances the core until ctx is cancelled or Stop is called (it
// never stops on an architectural exception,
// which is routed to the guest's own exception vector, not back out to
// Go).
func (v *VM) Run(ctx context.Context) {
	if v.running {
		panic("vm: already running")
	}
	v.running = true
	defer func() { v.running = false }()

	batch := v.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	for v.running {
		select {
		case <-ctx.Done():
			return
		default:
		}

		for i := 0; i < batch; i++ {
			if !v.running {
				return
			}
			if v.Mu != nil {
				v.Mu.Lock()
				v.Core.Step()
				v.Mu.Unlock()
			} else {
				v.Core.Step()
			}
			v.steps++
		}
	}
}

// Divergence reports the first architectural disagreement found between
// two Cores stepped in lockstep.
type Divergence struct {
	Step   uint64
	Detail string
}

func (d Divergence) Error() string {
	return fmt.Sprintf("step %d: %s", d.Step, d.Detail)
}

// Harness co-executes a functional reference core and a pipelined core
// over one shared address space, advancing the interpreter by exactly
// one retired instruction for every instruction the pipeline retires,
// and comparing GPRs/HI/LO/PC after each. Harness steps both cores from
// the calling goroutine and takes no lock.
type Harness struct {
	Functional Core
	Pipelined  Core
	steps      uint64
}

// NewHarness pairs a functional and a pipelined core for lockstep
// comparison.
func NewHarness(functional, pipelined Core) *Harness {
	return &Harness{Functional: functional, Pipelined: pipelined}
}

// Step advances the pipeline by one cycle; whenever that cycle retires
// an instruction, it advances the functional model by exactly one
// instruction and compares architectural state. Cycles that merely
// move the pipeline (stalls, bubbles, unretired stages in flight)
// produce no functional-model step, since the functional model has no
// notion of a cycle that retires nothing.
func (h *Harness) Step() (retired bool, err error) {
	h.steps++
	pipeRes := h.Pipelined.Step()
	if !pipeRes.Retired {
		return false, nil
	}

	funcRes := h.Functional.Step()
	if funcRes.Faulted != pipeRes.Faulted || (pipeRes.Faulted && funcRes.Exception != pipeRes.Exception) {
		return true, Divergence{Step: h.steps, Detail: fmt.Sprintf(
			"fault mismatch: functional={%v,%v} pipeline={%v,%v}",
			funcRes.Faulted, funcRes.Exception, pipeRes.Faulted, pipeRes.Exception)}
	}

	fg, pg := h.Functional.GPRs(), h.Pipelined.GPRs()
	if fg != pg {
		return true, Divergence{Step: h.steps, Detail: fmt.Sprintf("GPR mismatch: functional=%v pipeline=%v", fg, pg)}
	}
	fhi, flo := h.Functional.HILO()
	phi, plo := h.Pipelined.HILO()
	if fhi != phi || flo != plo {
		return true, Divergence{Step: h.steps, Detail: fmt.Sprintf(
			"HI/LO mismatch: functional=(%#x,%#x) pipeline=(%#x,%#x)", fhi, flo, phi, plo)}
	}
	if h.Functional.PC() != h.Pipelined.PC() {
		return true, Divergence{Step: h.steps, Detail: fmt.Sprintf(
			"PC mismatch: functional=%#x pipeline=%#x", h.Functional.PC(), h.Pipelined.PC())}
	}
	return true, nil
}

// Run drives Step in a loop, returning the first Divergence encountered
// or nil if ctx is cancelled first.
func (h *Harness) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if _, err := h.Step(); err != nil {
			return err
		}
	}
}
