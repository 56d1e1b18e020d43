package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ostrich/internal/store"
)

var bucketUsers = []byte("users")

var (
	ErrUnknownUser = errors.New("unknown user")
	ErrBadPassword = errors.New("bad password")
	ErrUserExists  = errors.New("user already exists")
)

// record is the stored account shape.
type record struct {
	Name    string    `json:"name"`
	Hash    []byte    `json:"hash"`
	Created time.Time `json:"created"`
}

// Users manages chat accounts. Passwords are kept as bcrypt hashes; the
// plaintext never touches the store.
type Users struct {
	st store.Store
}

func NewUsers(st store.Store) *Users {
	return &Users{st: st}
}

// Register creates an account. When registrations race on one name,
// exactly one wins; the rest get ErrUserExists.
func (u *Users) Register(name, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	data, err := json.Marshal(record{Name: name, Hash: hash, Created: time.Now().UTC()})
	if err != nil {
		return err
	}
	wrote, err := u.st.PutIfAbsent(bucketUsers, []byte(name), data)
	if err != nil {
		return err
	}
	if !wrote {
		return fmt.Errorf("%s: %w", name, ErrUserExists)
	}
	return nil
}

// Verify checks a name/password pair against the stored hash.
func (u *Users) Verify(name, password string) error {
	data, err := u.st.Get(bucketUsers, []byte(name))
	if err != nil {
		return err
	}
	if data == nil {
		return ErrUnknownUser
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("decoding user record: %w", err)
	}
	if bcrypt.CompareHashAndPassword(rec.Hash, []byte(password)) != nil {
		return ErrBadPassword
	}
	return nil
}

// Exists reports whether an account exists.
func (u *Users) Exists(name string) (bool, error) {
	data, err := u.st.Get(bucketUsers, []byte(name))
	if err != nil {
		return false, err
	}
	return data != nil, nil
}

// Count reports how many accounts exist.
func (u *Users) Count() (int, error) {
	snap, err := u.st.Snapshot(bucketUsers)
	if err != nil {
		return 0, err
	}
	return len(snap), nil
}

// Authenticate verifies a login, creating the account on first use. If two
// connections race to create the same account, the loser falls back to a
// plain verify against whichever hash won.
func (u *Users) Authenticate(name, password string) error {
	err := u.Verify(name, password)
	if !errors.Is(err, ErrUnknownUser) {
		return err
	}
	if err := u.Register(name, password); err != nil {
		if errors.Is(err, ErrUserExists) {
			return u.Verify(name, password)
		}
		return err
	}
	return nil
}
