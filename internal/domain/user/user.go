package user

import (
	"strings"
	"time"
)

// User is the domain entity corresponding to the `users` table. Profile CRUD
// lives outside this engine; the engine only resolves users to check that
// they exist and to read names for hydrated responses.
type User struct {
	ID        string
	UID       string // external identity-provider identifier
	Name      string
	Email     string
	PhotoURL  string
	CreatedAt time.Time
}

// Vehicle is a driver-owned vehicle. Vehicle CRUD is out of scope; the
// engine reads vehicles only to cap a published ride's seat capacity.
type Vehicle struct {
	ID       string
	OwnerID  string
	Name     string
	Capacity int
}

// DisplayName returns something presentable even for sparse profiles.
func (u *User) DisplayName() string {
	if n := strings.TrimSpace(u.Name); n != "" {
		return n
	}
	return u.Email
}
