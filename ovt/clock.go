package ovt

import "time"

// nowTimestamp returns the wall-clock-ish timestamp written into outgoing
// packet headers (spec §3: "timestamp (u64 wall-clock-ish)"; spec §4.1:
// "Timestamp is set from a monotonic clock at encode time").
func nowTimestamp() uint64 {
	return uint64(time.Now().UnixNano())
}
