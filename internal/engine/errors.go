package engine

import "errors"

// Domain errors. Callers branch with errors.Is; the wrapped message carries
// the offending values.
var (
	ErrInvalidSampleSize = errors.New("fleet size exceeds available population")
	ErrEmptyPollutantSet = errors.New("no pollutant requested")
	ErrUnknownPollutant  = errors.New("unknown pollutant")
	ErrEmptyDataset      = errors.New("dataset is empty")
	ErrInvalidParameter  = errors.New("invalid simulation parameter")
	ErrBudgetExceeded    = errors.New("search cost exceeds the operation budget")
)
