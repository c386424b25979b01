package model

import "time"

// LogRecord is one raw row read from a log table.
// PartitionKey and RowKey are the storage identifiers used for paging;
// Timestamp is the storage-assigned write time.
type LogRecord struct {
	PartitionKey string
	RowKey       string
	Timestamp    time.Time

	DateTime  time.Time
	Level     string
	Env       string
	Version   string
	Component string
	Process   string
	Context   string
	Type      string
	Stack     string
	Msg       string
}

// OutboundEvent is the normalized document sent to a sink.
// Process, Context and Msg serialize as null for sensitive sources.
// Context holds either the raw string or a decoded JSON object.
type OutboundEvent struct {
	DateTime    time.Time `json:"dateTime"`
	Level       string    `json:"level"`
	Version     string    `json:"version"`
	Component   string    `json:"component"`
	Process     *string   `json:"process"`
	Context     any       `json:"context"`
	Type        string    `json:"type"`
	Stack       string    `json:"stack"`
	Msg         *string   `json:"msg"`
	Table       string    `json:"table"`
	AccountName string    `json:"accountName"`

	// RowKey is carried for cursor bookkeeping and never serialized.
	RowKey string `json:"-"`
}
