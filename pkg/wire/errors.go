package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameSize reports a buffer that is not exactly FrameSize bytes.
	ErrFrameSize = errors.New("frame size mismatch")

	// ErrInvalidLength reports an inbound frame whose declared field length
	// exceeds the field's capacity. The frame is corrupt or hostile; the
	// connection that produced it cannot be trusted to stay in sync.
	ErrInvalidLength = errors.New("declared length exceeds capacity")

	// ErrFieldTooLong reports an outbound name that does not fit its slot.
	ErrFieldTooLong = errors.New("field exceeds capacity")

	// ErrTextTooLong reports outbound text longer than TextCap.
	ErrTextTooLong = errors.New("text exceeds capacity")
)

// InvalidLengthError carries which field of an inbound frame was over
// capacity. Matches ErrInvalidLength under errors.Is.
type InvalidLengthError struct {
	Field string
	Len   int
	Cap   int
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("%s length %d exceeds capacity %d", e.Field, e.Len, e.Cap)
}

func (e *InvalidLengthError) Unwrap() error { return ErrInvalidLength }

// FieldTooLongError carries which outbound name was over capacity.
// Matches ErrFieldTooLong under errors.Is.
type FieldTooLongError struct {
	Field string
	Len   int
	Cap   int
}

func (e *FieldTooLongError) Error() string {
	return fmt.Sprintf("%s is %d bytes, capacity %d", e.Field, e.Len, e.Cap)
}

func (e *FieldTooLongError) Unwrap() error { return ErrFieldTooLong }
