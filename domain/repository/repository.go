package repository

import "errors"

// ErrNotFound is returned by repositories when the requested row or document does not exist.
var ErrNotFound = errors.New("not found")
