package utils

import "errors"

// Error taxonomy shared by the codec, layers, training loop and loaders.
// Callers wrap these with fmt.Errorf("...: %w", ErrX) and test with errors.Is.
var (
	// ErrInvalidInput: malformed text reaching the codec, or attention
	// called with zero valid keys.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNumericalInstability: NaN/Inf seen in activations, loss or gradients.
	// Training treats it as a warning and skips the affected update.
	ErrNumericalInstability = errors.New("numerical instability")

	// ErrShapeMismatch: incompatible operand or parameter dimensions.
	// Always fatal.
	ErrShapeMismatch = errors.New("shape mismatch")
)
