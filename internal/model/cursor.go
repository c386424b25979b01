package model

import (
	"fmt"
	"time"
)

type Classification string

const (
	ClassificationDefault   Classification = "Default"
	ClassificationSensitive Classification = "Sensitive"
)

const (
	// PartitionLayout is the day bucket format of upstream partition keys.
	PartitionLayout = "2006-01-02"
	// RowKeyLayout is the time-of-day format upstream writers use for row keys.
	RowKeyLayout = "15:04:05.0000000"
	// PartitionStart sorts below every real row key of a partition.
	PartitionStart = "00"
)

// Cursor is the incremental read position of one source.
type Cursor struct {
	PartitionKey string `json:"partitionKey"`
	RowKey       string `json:"lastRowKey"`
}

// PartitionFor returns the UTC day partition containing t.
func PartitionFor(t time.Time) string {
	return t.UTC().Format(PartitionLayout)
}

// NewCursorAt positions a cursor at t so that rows written before t are
// never replayed.
func NewCursorAt(t time.Time) Cursor {
	t = t.UTC()
	return Cursor{
		PartitionKey: t.Format(PartitionLayout),
		RowKey:       t.Format(RowKeyLayout),
	}
}

// Day parses the cursor partition key.
func (c Cursor) Day() (time.Time, error) {
	d, err := time.Parse(PartitionLayout, c.PartitionKey)
	if err != nil {
		return time.Time{}, fmt.Errorf("cursor partition %q: %w", c.PartitionKey, err)
	}
	return d, nil
}

// Behind reports whether now falls on a later UTC day than the cursor partition.
func (c Cursor) Behind(now time.Time) (bool, error) {
	day, err := c.Day()
	if err != nil {
		return false, err
	}
	today, _ := time.Parse(PartitionLayout, PartitionFor(now))
	return today.After(day), nil
}
