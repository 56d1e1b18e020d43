package chat

import (
	"ostrich/internal/store"
)

var bucketGroups = []byte("groups")

// Groups persists group membership. Keys are the length-prefixed group name
// followed by the member name, so membership is a key lookup, a roster is a
// prefix scan, and no group/member pair can alias another. A group exists
// exactly as long as it has members.
type Groups struct {
	st store.Store
}

func NewGroups(st store.Store) *Groups {
	return &Groups{st: st}
}

func groupPrefix(group string) []byte {
	p := make([]byte, 0, len(group)+1)
	p = append(p, byte(len(group)))
	return append(p, group...)
}

func memberKey(group, user string) []byte {
	return append(groupPrefix(group), user...)
}

// Add records user as a member of group. Adding twice is a no-op.
func (g *Groups) Add(group, user string) error {
	return g.st.Put(bucketGroups, memberKey(group, user), []byte{1})
}

// Remove drops user from group. Removing a non-member is a no-op.
func (g *Groups) Remove(group, user string) error {
	return g.st.Delete(bucketGroups, memberKey(group, user))
}

// IsMember reports whether user belongs to group.
func (g *Groups) IsMember(group, user string) (bool, error) {
	v, err := g.st.Get(bucketGroups, memberKey(group, user))
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

// Members returns group's roster in byte order.
func (g *Groups) Members(group string) ([]string, error) {
	prefix := groupPrefix(group)
	var members []string
	err := g.st.ForEachPrefix(bucketGroups, prefix, func(k, v []byte) error {
		members = append(members, string(k[len(prefix):]))
		return nil
	})
	return members, err
}
