package domain

import "fmt"

// Role is a participant kind.
type Role string

const (
	RoleHost   Role = "host"
	RoleGuest  Role = "guest"
	RoleViewer Role = "viewer"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleHost, RoleGuest, RoleViewer:
		return Role(s), nil
	}
	return "", &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", s)}
}

// Publishes reports whether the role sends a camera stream.
func (r Role) Publishes() bool {
	return r == RoleHost || r == RoleGuest
}
