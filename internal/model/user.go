package model

import "time"

// User is a registered account in the social graph.
type User struct {
	ID             int64
	Username       string
	Email          string
	FollowerCount  int
	FollowingCount int
	IsCelebrity    bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
