package internal

import "github.com/cockroachdb/errors"

// WithStacks attaches a stack trace to err at the caller's frame and passes
// t through, so a two-value call can be wrapped in place:
//
//	data, err := internal.WithStacks(os.ReadFile(path))
func WithStacks[T any](t T, err error) (T, error) {
	//nolint:wrapcheck
	return t, errors.WithStackDepth(err, 1)
}
