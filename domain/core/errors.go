package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Model errors
	ErrUnsupportedModelKind = errors.New("unsupported model kind")
	ErrDegenerateCovariance = errors.New("degenerate covariance matrix")
	ErrInvalidModel         = errors.New("invalid fitted model")

	// Input / configuration errors
	ErrMissingCovariate  = errors.New("missing covariate column")
	ErrUnsupportedOption = errors.New("unsupported option")
	ErrInvalidOption     = errors.New("invalid option")
	ErrEmptyFrame        = errors.New("empty observation frame")
)

// Error constructors with context
func NewUnsupportedModelKindError(family string) error {
	return fmt.Errorf("%w: family %q", ErrUnsupportedModelKind, family)
}

func NewDegenerateCovarianceError(scope string) error {
	return fmt.Errorf("%w: %s is not positive definite", ErrDegenerateCovariance, scope)
}

func NewInvalidModelError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidModel, reason)
}

func NewMissingCovariateError(term string, row int) error {
	return fmt.Errorf("%w: %q required by row %d", ErrMissingCovariate, term, row)
}

func NewUnsupportedOptionError(option, reason string) error {
	return fmt.Errorf("%w: %s (%s)", ErrUnsupportedOption, option, reason)
}

func NewInvalidOptionError(option string, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidOption, option, reason)
}

// Error checking helpers
func IsModelError(err error) bool {
	return errors.Is(err, ErrUnsupportedModelKind) ||
		errors.Is(err, ErrDegenerateCovariance) ||
		errors.Is(err, ErrInvalidModel)
}

func IsInputError(err error) bool {
	return errors.Is(err, ErrMissingCovariate) ||
		errors.Is(err, ErrUnsupportedOption) ||
		errors.Is(err, ErrInvalidOption) ||
		errors.Is(err, ErrEmptyFrame)
}
