package usage

import "errors"

// ErrQuotaExceeded indicates the identity used up its rewrites for the period.
var ErrQuotaExceeded = errors.New("rewrite quota exceeded")
