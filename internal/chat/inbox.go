package chat

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"ostrich/internal/store"
	"ostrich/pkg/wire"
)

var bucketInbox = []byte("inbox")

// Inbox queues messages for users who are offline. Keys are the
// length-prefixed name followed by a big-endian sequence, so a prefix scan
// replays one user's messages in arrival order and never strays into
// another name's keys, whatever bytes the name contains. Values are
// encoded frames.
type Inbox struct {
	st store.Store
}

func NewInbox(st store.Store) *Inbox {
	return &Inbox{st: st}
}

func inboxPrefix(user string) []byte {
	p := make([]byte, 0, len(user)+1)
	p = append(p, byte(len(user)))
	return append(p, user...)
}

// Push appends a message to user's queue.
func (in *Inbox) Push(user string, p wire.Packet) error {
	seq, err := in.st.NextSeq(bucketInbox)
	if err != nil {
		return fmt.Errorf("inbox sequence: %w", err)
	}
	frame, err := wire.Encode(p)
	if err != nil {
		return err
	}
	key := binary.BigEndian.AppendUint64(inboxPrefix(user), seq)
	return in.st.Put(bucketInbox, key, frame)
}

// Drain hands user's queued messages to fn in arrival order. Delivery
// stops when fn returns false; delivered messages are removed, the rest
// stay queued. Returns the number delivered.
func (in *Inbox) Drain(user string, fn func(p wire.Packet) bool) (int, error) {
	type entry struct {
		key []byte
		p   wire.Packet
	}
	var entries []entry
	err := in.st.ForEachPrefix(bucketInbox, inboxPrefix(user), func(k, v []byte) error {
		p, err := wire.Decode(v)
		if err != nil {
			return fmt.Errorf("decoding queued message: %w", err)
		}
		entries = append(entries, entry{key: bytes.Clone(k), p: p})
		return nil
	})
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, e := range entries {
		if !fn(e.p) {
			break
		}
		if err := in.st.Delete(bucketInbox, e.key); err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}

// Len reports how many messages are queued for user.
func (in *Inbox) Len(user string) (int, error) {
	n := 0
	err := in.st.ForEachPrefix(bucketInbox, inboxPrefix(user), func(k, v []byte) error {
		n++
		return nil
	})
	return n, err
}
