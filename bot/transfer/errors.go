package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrOversize is wrapped by OversizeError.
	ErrOversize = errors.New("transfer: file exceeds size limit")
	// ErrTransfer is wrapped by TransferError.
	ErrTransfer = errors.New("transfer: failed")
)

const megabyte = 1024 * 1024

// OversizeError reports a file larger than the configured limit. Size is the
// declared length, or a lower bound when the length was not declared.
type OversizeError struct {
	Performer string
	Title     string
	Size      int64
	Limit     int64
	Declared  bool
}

func (e *OversizeError) Error() string {
	return fmt.Sprintf("transfer: %s - %s is %.2f MB, limit %.2f MB", e.Performer, e.Title, e.SizeMB(), e.LimitMB())
}

func (e *OversizeError) Unwrap() error {
	return ErrOversize
}

// SizeMB returns Size in mebibytes.
func (e *OversizeError) SizeMB() float64 {
	return float64(e.Size) / megabyte
}

// LimitMB returns Limit in mebibytes.
func (e *OversizeError) LimitMB() float64 {
	return float64(e.Limit) / megabyte
}

// TransferError reports a failure after the size check passed.
type TransferError struct {
	Stage string
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer: %s: %v", e.Stage, e.Err)
}

func (e *TransferError) Unwrap() []error {
	return []error{ErrTransfer, e.Err}
}

func stageErr(stage string, err error) error {
	return &TransferError{Stage: stage, Err: err}
}
