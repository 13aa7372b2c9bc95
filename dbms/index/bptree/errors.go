package bptree

import "github.com/cockroachdb/errors"

// ErrNotFound names the "key not present" outcome for callers that want it
// as an error value. Get and Erase never return it: both report a missing
// key through their boolean result, since a missing key is a normal
// outcome, never an error (spec §7).
var ErrNotFound = errors.New("bptree: key not found")

// ErrCorruptPage is returned when a page's kind byte is neither 0 nor 1 or
// its decoded key count exceeds the node's capacity. It is fatal to the
// operation that surfaces it. A negative child page index met during a
// descent is not reported as ErrCorruptPage: the pager's out-of-range
// error for that index is returned instead.
var ErrCorruptPage = errors.New("bptree: corrupt page")
