package db

import (
	"time"

	"github.com/google/uuid"
)

// AccessCode is a stored access credential. Only the digest of the code is
// kept.
type AccessCode struct {
	Digest    string    `json:"-"`
	UsedCount int       `json:"used_count"`
	MaxUses   int       `json:"max_uses"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Remaining returns how many more sessions the code can open.
func (c *AccessCode) Remaining() int {
	if !c.Active || c.UsedCount >= c.MaxUses {
		return 0
	}
	return c.MaxUses - c.UsedCount
}

// Session is one user's pass through the assessment.
type Session struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	AccessCodeDigest string     `json:"-"`
	PathSelected     *string    `json:"path_selected,omitempty"`
	Completed        bool       `json:"completed"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}
