package ocr

import (
	"errors"
	"fmt"
)

// ErrDecode is matched by every *DecodeError.
var ErrDecode = errors.New("decode image")

// DecodeError is returned when the input file cannot be opened or decoded.
// It is the only per-image failure Extract surfaces.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrDecode) match.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// AttemptError describes one failed recognizer call. The pipeline logs and absorbs it.
type AttemptError struct {
	Stage  string
	Method string
	Err    error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s attempt %s: %v", e.Stage, e.Method, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }
