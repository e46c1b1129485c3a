package proto

const (
	ReqIdKey = "req-id"

	// EventTimestampColumn is the reserved row column carrying the event
	// timestamp of a pushed row.
	EventTimestampColumn = "event_timestamp"
)
