package agenda

import (
	"errors"
	"fmt"
)

// ProviderError reports that a calendar or task source could not be read.
// The job that needed the data fails rather than printing partial content.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	if e.Provider == "" {
		return fmt.Sprintf("agenda provider: %v", e.Err)
	}
	return fmt.Sprintf("agenda provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func wrapProvider(name string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: name, Err: err}
}

func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
