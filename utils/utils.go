package utils

import "fmt"

// HeapPtr allocates a value into the heap and returns a pointer to it
func HeapPtr[T any](v T) *T {
	return &v
}

// RunAndWrapOnError runs the given function and wraps its error, if any, around existingErr.
func RunAndWrapOnError(runnable func() error, existingErr error) error {
	if runnable == nil {
		return existingErr
	}

	if err := runnable(); err != nil {
		if existingErr == nil {
			return err
		}
		return fmt.Errorf(`%w; failed to run: "%v"`, existingErr, err)
	}

	return existingErr
}
