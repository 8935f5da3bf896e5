package raster

import "fmt"

// ConfigError reports a precondition violation: a programmer error such as
// a null index buffer, an oversized attribute stride, or a malformed
// texture. These are hard failures per the error taxonomy — never retried,
// never silently dropped.
type ConfigError struct {
	Op     string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("raster: %s: %s", e.Op, e.Reason)
}

// OverflowError reports resource exhaustion: the scratch arena or the task
// system's packet queue ran out of capacity for the submitted workload.
// Like ConfigError this is a hard failure with no retry.
type OverflowError struct {
	Resource string
	Limit    int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("raster: %s exhausted (limit %d)", e.Resource, e.Limit)
}
