package plugin

import (
	"errors"
	"fmt"
)

var (
	// ErrDirectoryUnavailable reports a missing or unreadable plugin directory.
	ErrDirectoryUnavailable = errors.New("plugin directory unavailable")
	// ErrTimeout reports a plugin invocation that outlived its deadline.
	ErrTimeout = errors.New("plugin invocation timed out")
	// ErrNoEntryPoint reports a script that does not expose a handle function.
	ErrNoEntryPoint = errors.New("plugin has no handle entry point")
)

// LoadError is a per-file load failure. Sibling files still load.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load plugin %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// InvocationError is a failed, panicked or timed-out plugin run.
type InvocationError struct {
	Plugin string
	Err    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("plugin %s: %v", e.Plugin, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}
