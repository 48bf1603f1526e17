package orchestrator

import (
	"fmt"
	"log/slog"
	"sync"

	"marketplace/internal/address"
	"marketplace/internal/program"
)

// Orchestrator routes instructions to the registered programs
type Orchestrator struct {
	mu       sync.RWMutex
	programs map[address.Address]program.Program
	order    []program.Program
}

// New creates a new Orchestrator with the given programs
func New(programs ...program.Program) (*Orchestrator, error) {
	o := &Orchestrator{
		programs: make(map[address.Address]program.Program),
	}
	for _, p := range programs {
		if err := o.Register(p); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Register adds a program. Ids must be unique and never the system id.
func (o *Orchestrator) Register(p program.Program) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := p.ID()
	if id.IsZero() {
		return fmt.Errorf("program %s: zero id is reserved for the system program", p.Name())
	}
	if existing, ok := o.programs[id]; ok {
		return fmt.Errorf("program id %s already registered by %s", id, existing.Name())
	}
	o.programs[id] = p
	o.order = append(o.order, p)

	slog.Info("Program registered", "program", p.Name(), "id", id.String())
	return nil
}

// Lookup returns the program for id
func (o *Orchestrator) Lookup(id address.Address) (program.Program, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.programs[id]
	return p, ok
}

// Dispatch runs ix through the program it is addressed to
func (o *Orchestrator) Dispatch(ctx program.Context, ix program.Instruction) error {
	p, ok := o.Lookup(ix.ProgramID)
	if !ok {
		return program.Errorf(program.KindInvalidArgument, "unknown program %s", ix.ProgramID)
	}

	slog.Debug("Orchestrator: Dispatching instruction",
		"program", p.Name(),
		"instruction", ix.Name,
		"accounts", len(ix.Accounts),
	)

	if err := p.Process(ctx, ix); err != nil {
		slog.Debug("Instruction failed",
			"program", p.Name(),
			"instruction", ix.Name,
			"error", err,
		)
		return err
	}
	return nil
}

// Programs returns the registered programs in registration order (for inspection/testing)
func (o *Orchestrator) Programs() []program.Program {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]program.Program, len(o.order))
	copy(out, o.order)
	return out
}
