package record

import perr "auditor/internal/platform/errors"

// ErrInsufficientParameters is returned by New when recordID is empty or
// startTime is zero.
var ErrInsufficientParameters = perr.New(perr.ErrorCodeInvalidArgument, "record: insufficient parameters")

// ErrMalformedRecord is returned by Parse on missing keys, wrong types, or
// non-UTC timestamps. Validation failures returned from Record.validate
// wrap this sentinel so callers can errors.Is against it.
var ErrMalformedRecord = perr.New(perr.ErrorCodeValidation, "record: malformed record")
