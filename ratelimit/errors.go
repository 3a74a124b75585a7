package ratelimit

import "errors"

// ErrClosed is returned by Get once the Bucket has been closed.
var ErrClosed = errors.New("ratelimit: bucket closed")
