package domain

import "time"

// User is a voter or nominee
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
}

// FullName returns "First Last"
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Group is a set of users used to gate voting
type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Membership is a user's time-bounded membership in a group.
// A nil LeftAt means the membership is still active.
type Membership struct {
	UserID   int64      `json:"user_id"`
	GroupID  int64      `json:"group_id"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

// ActiveAt reports whether the membership covers t
func (m Membership) ActiveAt(t time.Time) bool {
	if t.Before(m.JoinedAt) {
		return false
	}
	return m.LeftAt == nil || t.Before(*m.LeftAt)
}

// Principal is the authenticated caller of a request. A zero ID is anonymous.
type Principal struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// Anonymous reports whether no user is attached
func (p Principal) Anonymous() bool {
	return p.UserID == 0
}
