package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the document is invalid
	ExitCommandError = 2 // bad input, unreadable fixture, store unavailable
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns ExitFailure for errors that are not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the JSON envelope written in json format.
type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
}

type outputFormatter struct {
	format    string
	w         io.Writer
	errWriter io.Writer
	verbose   bool
}

// emit writes data as a JSON envelope, or calls text for human output.
func (f *outputFormatter) emit(status string, data interface{}, text func(io.Writer)) error {
	if f.format == "json" {
		return json.NewEncoder(f.w).Encode(Response{Status: status, Data: data})
	}
	text(f.w)
	return nil
}

func (f *outputFormatter) verboseLog(format string, args ...interface{}) {
	if !f.verbose {
		return
	}
	fmt.Fprintf(f.errWriter, format+"\n", args...)
}
