package tm2

import "errors"

var (
	errNoRows         = errors.New("no data rows")
	errColumnMismatch = errors.New("column mismatch")
)

// BatchError marks a failure that invalidates the whole upload, as
// opposed to record-level problems which are reported per record and
// never abort a batch.
type BatchError struct {
	reason error
}

func (e BatchError) Error() string {
	return e.reason.Error()
}

func (e BatchError) Unwrap() error {
	return e.reason
}

// NewBatchError wraps err so IsBatchError reports true for it.
func NewBatchError(err error) error {
	return BatchError{reason: err}
}

func IsBatchError(err error) bool {
	var be BatchError
	return errors.As(err, &be)
}
