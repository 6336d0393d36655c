package domain

import (
	"errors"
	"fmt"

	"github.com/betenlace/affiliates/internal/currency"
)

var (
	ErrNoFxAvailable    = errors.New("no fx snapshot available")
	ErrConfigMissing    = errors.New("required configuration missing")
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrAdapterNotFound  = errors.New("no adapter registered for campaign")
	ErrBillPayed        = errors.New("withdrawal bill already payed")
	ErrLockHeld         = errors.New("advisory lock held by another owner")
)

type UnknownPairError struct {
	From, To currency.Code
}

func (e *UnknownPairError) Error() string {
	return fmt.Sprintf("unknown currency pair %s->%s", e.From, e.To)
}

// UpstreamError wraps an HTTP or decode failure from a bookmaker or the FX
// provider.
type UpstreamError struct {
	Source string
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s unavailable (status %d): %v", e.Source, e.Status, e.Err)
	}
	return fmt.Sprintf("upstream %s unavailable: %v", e.Source, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

type SchemaMismatchError struct {
	Source string
	Column string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s payload is missing column %q", e.Source, e.Column)
}

// ErrorKind names the taxonomy bucket an error belongs to.
type ErrorKind string

const (
	KindUpstreamUnavailable ErrorKind = "UpstreamUnavailable"
	KindSchemaMismatch      ErrorKind = "SchemaMismatch"
	KindConfigMissing       ErrorKind = "ConfigMissing"
	KindTransientInfra      ErrorKind = "TransientInfra"
	KindInternal            ErrorKind = "Internal"
)

// Classify maps a job-level error to its taxonomy kind.
func Classify(err error) ErrorKind {
	var up *UpstreamError
	var schema *SchemaMismatchError
	var pair *UnknownPairError
	switch {
	case errors.As(err, &up):
		return KindUpstreamUnavailable
	case errors.As(err, &schema):
		return KindSchemaMismatch
	case errors.Is(err, ErrNoFxAvailable), errors.Is(err, ErrConfigMissing),
		errors.Is(err, ErrCampaignNotFound), errors.Is(err, ErrAdapterNotFound),
		errors.As(err, &pair):
		return KindConfigMissing
	case errors.Is(err, ErrLockHeld):
		return KindTransientInfra
	}
	return KindInternal
}
