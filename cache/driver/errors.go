// Package driver holds what the cache backends share.
package driver

import "errors"

// ErrKeyNotFound is returned by every backend when a key is missing or expired.
var ErrKeyNotFound = errors.New("key not found")
