package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrTemporary           = errors.New("temporary failure")
	ErrCorpusEmpty         = errors.New("no indexable documents found")
	ErrIndexUnavailable    = errors.New("vector index not available")
	ErrOracleFailure       = errors.New("oracle call failed")
	ErrParseFailure        = errors.New("judge response not parseable")
	ErrUnsupportedDocument = errors.New("unsupported document")
	ErrBuildInProgress     = errors.New("index build already in progress")
	ErrBuildNotFound       = errors.New("index build not found")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
