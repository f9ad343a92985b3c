package store

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound  = errors.New("document not found")
	ErrKeyExists = errors.New("document already exists")
	ErrClosed    = errors.New("store closed")
)
