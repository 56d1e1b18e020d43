package wire

// getName reads a length-prefixed name: one length byte at lenOff, up to
// capacity bytes of data at dataOff. Bytes past the declared length are
// padding and never inspected.
func getName(frame []byte, lenOff, dataOff, capacity int, field string) (string, error) {
	n := int(frame[lenOff])
	if n > capacity {
		return "", &InvalidLengthError{Field: field, Len: n, Cap: capacity}
	}
	return string(frame[dataOff : dataOff+n]), nil
}

// putName writes a length-prefixed name into a zeroed frame. Rejects names
// over capacity; the unused tail of the slot stays zero.
func putName(frame []byte, lenOff, dataOff, capacity int, field, name string) error {
	if len(name) > capacity {
		return &FieldTooLongError{Field: field, Len: len(name), Cap: capacity}
	}
	frame[lenOff] = byte(len(name))
	copy(frame[dataOff:dataOff+capacity], name)
	return nil
}

// Fit clips s to at most max bytes. Encoding never truncates on its own;
// callers that prefer clipping over a FieldTooLong error do it explicitly.
func Fit(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
