package domain

import (
	"fmt"
	"strings"
)

// Store is one shop. Its data lives in a dataset of its own.
type Store struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	OwnerID   int64  `db:"owner_id" json:"owner_id"`
	Dataset   string `db:"dataset" json:"-"`
	CreatedAt string `db:"created_at" json:"created_at"`
}

// StoreAccess is a store as seen by one user.
type StoreAccess struct {
	Store
	Level Permission `db:"level" json:"level"`
}

// Permission is an ordered access level on a store.
type Permission int

const (
	PermissionNone Permission = iota
	PermissionViewer
	PermissionEditor
	PermissionManager
	PermissionOwner
)

var permissionNames = map[Permission]string{
	PermissionNone:    "none",
	PermissionViewer:  "viewer",
	PermissionEditor:  "editor",
	PermissionManager: "manager",
	PermissionOwner:   "owner",
}

func (p Permission) String() string {
	if name, ok := permissionNames[p]; ok {
		return name
	}
	return fmt.Sprintf("permission(%d)", int(p))
}

// AtLeast reports whether p grants everything min grants.
func (p Permission) AtLeast(min Permission) bool {
	return p >= min
}

// ParsePermission maps a level name to its Permission.
func ParsePermission(s string) (Permission, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range permissionNames {
		if p != PermissionNone && name == s {
			return p, nil
		}
	}
	return PermissionNone, fmt.Errorf("unknown permission level %q", s)
}

func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Permission) UnmarshalText(text []byte) error {
	parsed, err := ParsePermission(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
