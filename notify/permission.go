package notify

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// PermissionStore remembers the platform's answer to the notification
// permission request, per user.
type PermissionStore interface {
	// Get returns the remembered answer; known is false when never asked.
	Get(user string) (granted, known bool, err error)
	Put(user string, granted bool) error
}

// MemPermissions keeps answers for the lifetime of the process.
type MemPermissions map[string]bool

func (m MemPermissions) Get(user string) (bool, bool, error) {
	granted, known := m[user]
	return granted, known, nil
}

func (m MemPermissions) Put(user string, granted bool) error {
	m[user] = granted
	return nil
}

var permissionBucket = []byte("notify_permissions")

// BoltPermissions keeps answers in a bbolt file so a user is asked once
// across runs.
type BoltPermissions struct {
	db *bbolt.DB
}

func OpenBoltPermissions(path string) (*BoltPermissions, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open permission store %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(permissionBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init permission store %s: %w", path, err)
	}
	return &BoltPermissions{db: db}, nil
}

func (s *BoltPermissions) Get(user string) (granted, known bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(permissionBucket).Get([]byte(user))
		if v == nil {
			return nil
		}
		known = true
		granted = len(v) == 1 && v[0] == 1
		return nil
	})
	return
}

func (s *BoltPermissions) Put(user string, granted bool) error {
	v := []byte{0}
	if granted {
		v[0] = 1
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(permissionBucket).Put([]byte(user), v)
	})
}

func (s *BoltPermissions) Close() error {
	return s.db.Close()
}
