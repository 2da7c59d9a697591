package sync

import (
	"go.uber.org/zap"
)

// Executor gates every mutating client call. In dry-run mode it logs the
// decision at the same site a live run would and returns a synthesized
// success instead of invoking the mutation, so both modes walk identical
// control flow and differ only in side effects.
type Executor struct {
	dryRun    bool
	logger    *zap.Logger
	mutations int
}

// NewExecutor creates an executor.
func NewExecutor(dryRun bool, logger *zap.Logger) *Executor {
	return &Executor{dryRun: dryRun, logger: logger}
}

// DryRun reports the execution mode.
func (x *Executor) DryRun() bool {
	return x.dryRun
}

// Mutations returns how many mutating calls were actually issued.
func (x *Executor) Mutations() int {
	return x.mutations
}

// Apply logs op and runs fn unless in dry-run mode.
func (x *Executor) Apply(op string, fn func() error, fields ...zap.Field) error {
	fields = append(fields, zap.Bool("dry_run", x.dryRun))
	x.logger.Info(op, fields...)
	if x.dryRun {
		return nil
	}
	x.mutations++
	return fn()
}

// ApplyID is Apply for mutations that return an assigned id. Dry-run mode
// returns placeholder so downstream membership and enrollment decisions
// execute the same branches as a live run.
func (x *Executor) ApplyID(op, placeholder string, fn func() (string, error), fields ...zap.Field) (string, error) {
	fields = append(fields, zap.Bool("dry_run", x.dryRun))
	x.logger.Info(op, fields...)
	if x.dryRun {
		return placeholder, nil
	}
	x.mutations++
	return fn()
}
