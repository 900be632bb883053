package model

import "time"

// Follow is a directed edge in the social graph: FollowerID follows
// FollowingID.
type Follow struct {
	FollowerID  int64
	FollowingID int64
	CreatedAt   time.Time
}
