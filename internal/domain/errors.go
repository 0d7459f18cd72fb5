// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrMalformedEvent indicates a bus message that could not be decoded
// into an Event. It is always handled locally: logged and dropped.
var ErrMalformedEvent = errors.New("malformed event")
