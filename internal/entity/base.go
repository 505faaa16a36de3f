package entity

import (
	"fmt"
	"time"
)

// NowUnixMilli returns current unix timestamp in milliseconds
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// FormatTimestamp renders a unix millisecond timestamp as ISO-8601 UTC
func FormatTimestamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// GenDirectKey generates the uniqueness key for a direct conversation
// Format: {min(userA,userB)}:{max(userA,userB)}
func GenDirectKey(userA, userB int64) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%d:%d", userA, userB)
}
