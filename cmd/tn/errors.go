package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/steveyegge/tenet/internal/engine"
)

// Exit codes
const (
	exitError      = 1
	exitValidation = 2
)

// FatalError writes an error message to stderr and exits with code 1.
// Use this for setup failures that prevent the command from running at all.
func FatalError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(exitError)
}

// FatalErrorWithHint writes an error message with a hint to stderr and exits.
func FatalErrorWithHint(message, hint string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
	fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	os.Exit(exitError)
}

// FatalIfErr reports an engine error and exits with the code matching its
// kind. With --json the error goes to stderr as {"error", "code"}.
func FatalIfErr(err error) {
	if err == nil {
		return
	}
	if jsonOutput {
		outputJSONError(err, errorCode(err))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

// exitCode maps an error to the process exit code: 2 for validation errors,
// 1 for everything else.
func exitCode(err error) int {
	if errors.Is(err, engine.ErrValidation) {
		return exitValidation
	}
	return exitError
}

// errorCode is the machine-readable kind of err for --json output.
func errorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrValidation):
		return "validation"
	case errors.Is(err, engine.ErrNotFound):
		return "not_found"
	case errors.Is(err, engine.ErrCycle):
		return "cycle"
	case errors.Is(err, engine.ErrInUse):
		return "in_use"
	case errors.Is(err, engine.ErrConflictingRequest):
		return "conflicting_request"
	case errors.Is(err, engine.ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, engine.ErrResolutionFailed):
		return "resolution_failed"
	case errors.Is(err, engine.ErrReplayMismatch):
		return "replay_mismatch"
	}
	return ""
}

// invalidInput marks a bad flag or argument as a validation error so it
// exits with code 2 like the engine's own validation failures.
func invalidInput(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", engine.ErrValidation, err)
}
