package main

import (
	"errors"

	"github.com/khushibohraAcc/smartscript-builder/pkg/api"
)

// Exit codes: 1 generic failure, 2 usage, 3 backend rejected the request,
// 4 the backend was unreachable or timed out.
const (
	exitFailure = 1
	exitUsage   = 2
	exitBackend = 3
	exitNetwork = 4
)

type exitCoder interface {
	ExitCode() int
}

type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e exitError) Unwrap() error { return e.err }

func (e exitError) ExitCode() int {
	if e.code == 0 {
		return exitFailure
	}
	return e.code
}

func withExitCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return exitError{code: code, err: err}
}

func exitCodeForError(err error) int {
	if err == nil {
		return 0
	}
	var coded exitCoder
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	if api.IsTimeout(err) || api.IsNetwork(err) {
		return exitNetwork
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return exitBackend
	}
	return exitFailure
}
