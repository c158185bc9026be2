package errorutil

import "errors"

// ErrDataIntegrity is a base error type to use for failures that are due to
// unrecoverable data integrity issues.
var ErrDataIntegrity = errors.New("data integrity error")

// ErrNoResults represents situations in which no results were returned by the called API.
var ErrNoResults = errors.New("no results returned")

// ErrEmptyProfile is returned by importers when the input was parsed
// successfully but didn't contain a single sample.
var ErrEmptyProfile = errors.New("profile is empty")
