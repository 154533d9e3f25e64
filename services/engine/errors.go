package engine

import (
	"errors"
	"fmt"
)

// DataError is fatal: the candle stream is unusable past this point. The
// run aborts and the partial result is returned alongside it.
type DataError struct {
	Reason    string
	Timestamp int64
	BarIndex  int
}

func (e *DataError) Error() string {
	return fmt.Sprintf("data error at bar %d (ts %d): %s", e.BarIndex, e.Timestamp, e.Reason)
}

// ConfigError rejects a contradictory configuration before the run starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// MarginError declines a single entry order that cannot be funded. It is
// recoverable: the order is cancelled and the run continues.
type MarginError struct {
	Required float64
	Free     float64
}

func (e *MarginError) Error() string {
	return fmt.Sprintf("insufficient margin: required %v, free %v", e.Required, e.Free)
}

// EngineCapabilityError reports a requested feature the selected engine does
// not implement. The caller must fall back to the reference engine; silent
// approximation is forbidden.
type EngineCapabilityError struct {
	Engine     string
	Capability string
}

func (e *EngineCapabilityError) Error() string {
	return fmt.Sprintf("engine %q does not support %s", e.Engine, e.Capability)
}

// ErrOrphanOrder indicates an active exit order referencing no open
// position. This is a defect in the book state, never a market condition.
var ErrOrphanOrder = errors.New("active exit order references a closed position")
