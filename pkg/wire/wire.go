package wire

import (
	"encoding/binary"
	"fmt"
)

// Frame layout, version 1. Every frame is exactly FrameSize bytes; all
// offsets below are fixed and identical on both ends of a connection.
const (
	ProtocolVersion = 1

	FrameSize   = 1024
	SenderCap   = 14
	ReceiverCap = 14
	HeaderSize  = 33                     // command + both names + text length
	TextCap     = FrameSize - HeaderSize // 991
)

// Byte offsets within a frame.
const (
	offCommand     = 0
	offSenderLen   = 1
	offSender      = 2
	offReceiverLen = offSender + SenderCap      // 16
	offReceiver    = offReceiverLen + 1         // 17
	offTextLen     = offReceiver + ReceiverCap  // 31
	offText        = offTextLen + 2             // 33
)

// Packet is the decoded form of one frame. Fields a command does not use
// stay empty; see Descriptor.Fields for the shape of each command.
type Packet struct {
	Command  CommandID
	Sender   string
	Receiver string
	Text     string
}

// Desc resolves the packet's command descriptor.
func (p Packet) Desc() Descriptor {
	return Resolve(p.Command)
}

// Decode parses a single frame. The frame must be exactly FrameSize bytes;
// declared field lengths are validated against their capacities before any
// field is extracted. Bytes beyond a declared length are ignored, so frames
// with dirty padding still decode. An unassigned command id is not an
// error: the packet carries it and Resolve reports it as unknown.
func Decode(frame []byte) (Packet, error) {
	if len(frame) != FrameSize {
		return Packet{}, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(frame), FrameSize)
	}

	sender, err := getName(frame, offSenderLen, offSender, SenderCap, "sender")
	if err != nil {
		return Packet{}, err
	}
	receiver, err := getName(frame, offReceiverLen, offReceiver, ReceiverCap, "receiver")
	if err != nil {
		return Packet{}, err
	}
	textLen := int(binary.BigEndian.Uint16(frame[offTextLen : offTextLen+2]))
	if textLen > TextCap {
		return Packet{}, &InvalidLengthError{Field: "text", Len: textLen, Cap: TextCap}
	}

	return Packet{
		Command:  CommandID(frame[offCommand]),
		Sender:   sender,
		Receiver: receiver,
		Text:     string(frame[offText : offText+textLen]),
	}, nil
}

// Encode serializes p into a fresh FrameSize buffer. Encoding is strict:
// oversized names fail with FieldTooLong and oversized text with
// ErrTextTooLong, never silent truncation. All bytes past each declared
// length are zero, so encoding equal packets yields identical frames.
func Encode(p Packet) ([]byte, error) {
	frame := make([]byte, FrameSize)
	if err := encode(p, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// EncodeTo serializes p into frame, which must be exactly FrameSize bytes.
// The buffer is zeroed first, so callers can reuse one frame across writes.
func EncodeTo(p Packet, frame []byte) error {
	if len(frame) != FrameSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(frame), FrameSize)
	}
	clear(frame)
	return encode(p, frame)
}

// encode fills a zeroed FrameSize buffer.
func encode(p Packet, frame []byte) error {
	if len(p.Text) > TextCap {
		return fmt.Errorf("%w: %d bytes, cap %d", ErrTextTooLong, len(p.Text), TextCap)
	}
	if err := putName(frame, offSenderLen, offSender, SenderCap, "sender", p.Sender); err != nil {
		return err
	}
	if err := putName(frame, offReceiverLen, offReceiver, ReceiverCap, "receiver", p.Receiver); err != nil {
		return err
	}
	frame[offCommand] = byte(p.Command)
	binary.BigEndian.PutUint16(frame[offTextLen:offTextLen+2], uint16(len(p.Text)))
	copy(frame[offText:], p.Text)
	return nil
}
