package cli

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/grovetools/devdash/errors"
	"github.com/grovetools/devdash/internal/daemon/pidfile"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to stderr
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     os.Stderr,
	}
}

// Handle prints a message for err based on its error code and returns err.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	out := h.Out

	var running *pidfile.AlreadyRunningError
	if stderrors.As(err, &running) {
		fmt.Fprintf(out, "Error: the dashboard is already running (PID %d). Stop it with 'devdash stop'.\n", running.PID)
		return err
	}

	dashErr, _ := err.(*errors.DashError)
	detail := func(key string) interface{} {
		if dashErr == nil {
			return nil
		}
		return dashErr.Details[key]
	}

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(out, "Error: configuration file %v not found.\n", detail("path"))
		fmt.Fprintf(out, "Create devdash.yml or run 'devdash config schema' for the available keys.\n")

	case errors.ErrCodeConfigInvalid:
		fmt.Fprintf(out, "Error: %s\n", errors.Message(err))
		if path := detail("path"); path != nil {
			fmt.Fprintf(out, "Fix %v and try again.\n", path)
		}

	case errors.ErrCodeInvalidName, errors.ErrCodePathEscape:
		fmt.Fprintf(out, "Error: %s\n", errors.Message(err))
		fmt.Fprintf(out, "Project names may only contain letters, digits, '-' and '_'.\n")

	case errors.ErrCodeProjectNotFound:
		fmt.Fprintf(out, "Error: project not found. Run 'devdash projects' to list projects.\n")

	case errors.ErrCodeManifestNotFound:
		fmt.Fprintf(out, "Error: %s\n", errors.Message(err))

	default:
		fmt.Fprintf(out, "Error: %v\n", err)
	}

	if h.Verbose && dashErr != nil {
		fmt.Fprintf(out, "\nError details:\n%s\n", dashErr.ToJSON())
	}
	return err
}
