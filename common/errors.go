package common

import (
	"errors"
	"fmt"
)

// Errors a caller can run into during normal operation. They are returned,
// never raised.
var (
	ErrNoSpace       = errors.New("no space left on device")
	ErrNoInodes      = errors.New("no free inodes")
	ErrFileTooLarge  = errors.New("file too large")
	ErrInvalidOffset = errors.New("offset beyond end of file")
	ErrExists        = errors.New("file exists")
	ErrNotFound      = errors.New("no such file or directory")
	ErrNotDir        = errors.New("not a directory")
	ErrIsDir         = errors.New("is a directory")
	ErrNotEmpty      = errors.New("directory not empty")
	ErrInvalid       = errors.New("invalid argument")
)

// FatalError reports a broken file-system invariant. It is raised with panic
// by Fatalf and is only ever recovered by Halt.
type FatalError struct {
	Where string
	Msg   string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Where, e.Msg)
}

func Fatalf(where string, format string, a ...interface{}) {
	panic(&FatalError{Where: where, Msg: fmt.Sprintf(format, a...)})
}

// Halt runs f and returns the FatalError that stopped it, if any. Other
// panics keep unwinding.
func Halt(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			fe, ok := r.(*FatalError)
			if !ok {
				panic(r)
			}
			err = fe
		}
	}()
	f()
	return nil
}
