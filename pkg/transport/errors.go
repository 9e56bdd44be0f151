package transport

import "fmt"

// MetadataError reports a failed group participant lookup.
type MetadataError struct {
	Group Identity
	Err   error
}

func (e *MetadataError) Error() string {
	if e == nil {
		return ""
	}

	return fmt.Sprintf("group metadata lookup for %s: %v", e.Group, e.Err)
}

func (e *MetadataError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// NormalizationError reports a raw event that could not be turned into a message.
type NormalizationError struct {
	EventType string
	Err       error
}

func (e *NormalizationError) Error() string {
	if e == nil {
		return ""
	}

	return fmt.Sprintf("normalize %s event: %v", e.EventType, e.Err)
}

func (e *NormalizationError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}
