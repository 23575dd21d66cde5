package domain

import (
	"context"
	"time"
)

// RawEvent represents an unprocessed message from a source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// OutputEvent is the serialized form destined for a sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// RawAuthor is the author block of a raw social post.
type RawAuthor struct {
	ID            string `json:"id"`
	Handle        string `json:"handle"`
	Verified      bool   `json:"verified"`
	FollowerCount int    `json:"followerCount"`
}

// RawPostLocation is the optional location block of a raw social post. Either
// explicit coordinates or free-form place text may be present.
type RawPostLocation struct {
	Lat       *float64 `json:"lat,omitempty"`
	Lon       *float64 `json:"lon,omitempty"`
	PlaceText string   `json:"placeText,omitempty"`
}

// RawPost is the JSON shape of a social post published by the collectors.
type RawPost struct {
	ID          string           `json:"id"`
	Text        string           `json:"text"`
	CreatedAt   time.Time        `json:"createdAt"`
	Author      RawAuthor        `json:"author"`
	Location    *RawPostLocation `json:"location,omitempty"`
	Language    string           `json:"language,omitempty"`
	Platform    string           `json:"platform"`
	Attachments []string         `json:"attachments"`
}

// RawReport is the JSON shape of a hazard report submission.
type RawReport struct {
	ID             string     `json:"id"`
	AuthorID       string     `json:"authorId"`
	HazardType     string     `json:"hazardType"`
	Severity       string     `json:"severity"`
	Description    string     `json:"description"`
	Location       *Location  `json:"location,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	HasMedia       bool       `json:"hasMedia"`
	UserReputation *float64   `json:"userReputation,omitempty"`
	SourceType     SourceType `json:"sourceType,omitempty"`
}
