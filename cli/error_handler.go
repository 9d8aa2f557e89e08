package cli

import (
	"fmt"
	"io"

	"github.com/grovetools/tabwatt/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to out
func NewErrorHandler(verbose bool, out io.Writer) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     out,
	}
}

// Handle prints a hint matching the error code and returns err unchanged
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(h.Out, "Configuration not found. Run 'tabwatt config schema' to see the available keys.\n")
	case errors.ErrCodeConfigInvalid, errors.ErrCodeConfigValidation:
		fmt.Fprintf(h.Out, "Invalid configuration: %v\n", err)
	case errors.ErrCodeUnavailable, errors.ErrCodeTimeout:
		fmt.Fprintf(h.Out, "The daemon did not answer: %v\n", err)
		fmt.Fprintf(h.Out, "Check it with 'tabwatt daemon status'.\n")
	case errors.ErrCodeRateLimited:
		if twErr, ok := err.(*errors.TabwattError); ok {
			fmt.Fprintf(h.Out, "Migration was attempted recently. Retry after %v.\n", twErr.Details["retryAfter"])
		} else {
			fmt.Fprintf(h.Out, "Error: %v\n", err)
		}
	default:
		fmt.Fprintf(h.Out, "Error: %v\n", err)
	}

	if h.Verbose {
		if twErr, ok := err.(*errors.TabwattError); ok {
			fmt.Fprintf(h.Out, "\nError details:\n%s\n", twErr.ToJSON())
		}
	}
	return err
}
