package ws

import (
	"sync"
	"time"
)

// ConnInfo describes one websocket connection for the ops event pipeline.
// The write mutex serializes frames from the per-channel fan-out goroutines.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time

	writeMu *sync.Mutex
}

// NewConnInfo builds ConnInfo with its write lock initialized.
func NewConnInfo(connID string, userID int, deviceID, ip, requestID, traceID string) ConnInfo {
	return ConnInfo{
		ConnID:      connID,
		UserID:      userID,
		DeviceID:    deviceID,
		IP:          ip,
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
		writeMu:     &sync.Mutex{},
	}
}
