package model

import (
	"fmt"
	"time"
)

// Issue represents a reported civic issue as the feed sees it
type Issue struct {
	ID           string    `json:"id,omitempty" yaml:"id"`
	MongoID      string    `json:"_id,omitempty" yaml:"-"`
	Title        string    `json:"title" yaml:"title"`
	Description  string    `json:"description" yaml:"description"`
	Location     string    `json:"location" yaml:"location"`
	Ward         string    `json:"ward,omitempty" yaml:"ward,omitempty"`
	Image        string    `json:"image" yaml:"image"`
	Likes        int       `json:"likes" yaml:"likes"`
	Comments     int       `json:"comments" yaml:"comments"`
	CreatedAt    time.Time `json:"createdAt" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty" yaml:"updated_at,omitempty"`
	UserID       string    `json:"userId,omitempty" yaml:"user_id,omitempty"`
	UserHasLiked bool      `json:"userHasLiked" yaml:"-"`
	Status       Status    `json:"status,omitempty" yaml:"status,omitempty"`
	AssignedTo   string    `json:"assignedTo,omitempty" yaml:"assigned_to,omitempty"`
	Category     string    `json:"category,omitempty" yaml:"category,omitempty"`
	AIConfidence *float64  `json:"aiConfidence,omitempty" yaml:"ai_confidence,omitempty"`
	AISummary    string    `json:"aiSummary,omitempty" yaml:"ai_summary,omitempty"`
}

// Key returns the identity of the issue. Some backends only send _id.
func (i Issue) Key() string {
	if i.ID != "" {
		return i.ID
	}
	return i.MongoID
}

// EffectiveStatus returns the issue status, treating a missing or unknown one as NEW
func (i Issue) EffectiveStatus() Status {
	return ParseStatus(string(i.Status))
}

// CreatePayload is what the client sends to publish an issue. The store assigns
// id, counters and the creation timestamp.
type CreatePayload struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Location     string   `json:"location"`
	Ward         string   `json:"ward,omitempty"`
	Image        string   `json:"image"`
	Category     string   `json:"category,omitempty"`
	AIConfidence *float64 `json:"aiConfidence,omitempty"`
	AISummary    string   `json:"aiSummary,omitempty"`
}

// LikeResult is the authoritative like state returned by the store
type LikeResult struct {
	Likes        int  `json:"likes"`
	UserHasLiked bool `json:"userHasLiked"`
}

// Comment is fetched on demand and never kept in the issue cache
type Comment struct {
	ID           string    `json:"id,omitempty"`
	MongoID      string    `json:"_id,omitempty"`
	IssueID      string    `json:"issueId,omitempty"`
	UserID       string    `json:"userId,omitempty"`
	AuthorName   string    `json:"authorName,omitempty"`
	AuthorAvatar string    `json:"authorAvatar,omitempty"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Key identifies a comment within a rendered list. When the store omits both
// ids, the issue id, timestamp and list position are combined.
func (c Comment) Key(index int) string {
	switch {
	case c.ID != "":
		return c.ID
	case c.MongoID != "":
		return c.MongoID
	}
	return fmt.Sprintf("%s:%s:%d", c.IssueID, c.CreatedAt.UTC().Format(time.RFC3339Nano), index)
}

// Draft is the AI suggestion made from an uploaded image
type Draft struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Confidence  float64 `json:"confidence"`
	AISummary   string  `json:"aiSummary,omitempty"`
}

// DraftRequest asks the backend to draft an issue from an uploaded image
type DraftRequest struct {
	ImageURL string `json:"imageUrl"`
	Location string `json:"location,omitempty"`
	Ward     string `json:"ward,omitempty"`
}

// UploadSignature holds the signed parameters for a direct image host upload
type UploadSignature struct {
	Timestamp int64       `json:"timestamp"`
	Folder    string      `json:"folder"`
	Signature string      `json:"signature"`
	APIKey    FlexibleKey `json:"apiKey"`
	CloudName string      `json:"cloudName"`
}

// DeleteResult is returned by the store after an issue is deleted
type DeleteResult struct {
	OK bool `json:"ok"`
}
