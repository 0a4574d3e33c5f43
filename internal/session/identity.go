package session

import "context"

// Identity supplies the signed-in employee id. An empty id means nobody is
// signed in; callers treat it as read-only.
type Identity interface {
	EmployeeID(ctx context.Context) (string, error)
}

// StaticIdentity is an Identity with a fixed employee id.
type StaticIdentity string

// EmployeeID returns the fixed id.
func (s StaticIdentity) EmployeeID(context.Context) (string, error) {
	return string(s), nil
}
