package services

import "time"

// SegmentEvent is published on the event bus when a session completes a
// speech segment. Subscribers (the journal, when storage is enabled)
// receive metadata only; the audio stays with the client reply.
type SegmentEvent struct {
	SessionUID     string
	ConnectSession string
	StartedAt      time.Time
	EndedAt        time.Time
	DurationMs     int64
	PayloadBytes   int
}

// DropEvent is published when backpressure discards an inbound chunk.
type DropEvent struct {
	SessionUID string
	Bytes      int
}
