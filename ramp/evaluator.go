package ramp

// A Target receives the value of a ramp each step.
type Target[T any] interface {
	Set(value T) error
}

// TargetFunc adapts a function to the Target interface.
type TargetFunc[T any] func(value T) error

// Set calls f(value).
func (f TargetFunc[T]) Set(value T) error {
	return f(value)
}

// An Evaluator advances one ramp table and writes the value in effect into
// its target.
type Evaluator[T any] struct {
	table  *Table[T]
	target Target[T]
}

// NewEvaluator binds a table to a target.
func NewEvaluator[T any](table *Table[T], target Target[T]) *Evaluator[T] {
	return &Evaluator[T]{
		table:  table,
		target: target,
	}
}

// Apply evaluates the table at now and pushes the value to the target.
func (e *Evaluator[T]) Apply(now float64) error {
	return e.target.Set(e.table.Evaluate(now))
}

// Table returns the table driven by the evaluator.
func (e *Evaluator[T]) Table() *Table[T] {
	return e.table
}
