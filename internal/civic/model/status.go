package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Status is the review state of an issue
type Status string

const (
	StatusNew          Status = "NEW"
	StatusAcknowledged Status = "ACKNOWLEDGED"
	StatusInProgress   Status = "IN_PROGRESS"
	StatusEscalated    Status = "ESCALATED"
	StatusCompleted    Status = "COMPLETED"
	StatusRejected     Status = "REJECTED"
)

var statusLabels = map[Status]string{
	StatusNew:          "New",
	StatusAcknowledged: "Acknowledged",
	StatusInProgress:   "In Progress",
	StatusEscalated:    "Escalated",
	StatusCompleted:    "Resolved",
	StatusRejected:     "Rejected",
}

// Timeline lists the statuses shown as progress steps on an issue card
var Timeline = []Status{StatusInProgress, StatusCompleted}

// ParseStatus returns the status named by s, or NEW when s is empty or unknown
func ParseStatus(s string) Status {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := statusLabels[st]; ok {
		return st
	}
	return StatusNew
}

// Label returns the human readable name of the status
func (s Status) Label() string {
	return statusLabels[ParseStatus(string(s))]
}

// Open reports whether the issue still needs work
func (s Status) Open() bool {
	switch ParseStatus(string(s)) {
	case StatusCompleted, StatusRejected:
		return false
	}
	return true
}

// TimelineIndex returns the position of s in Timeline, or -1
func TimelineIndex(s Status) int {
	st := ParseStatus(string(s))
	for i, t := range Timeline {
		if t == st {
			return i
		}
	}
	return -1
}

// FlexibleKey accepts both JSON strings and numbers. The image host API key
// arrives as either depending on the backend version.
type FlexibleKey string

// UnmarshalJSON implements json.Unmarshaler
func (k *FlexibleKey) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*k = FlexibleKey(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*k = FlexibleKey(n.String())
	return nil
}

// String returns the key as sent in form fields
func (k FlexibleKey) String() string {
	return string(k)
}

// FormatConfidence renders an AI confidence score as a percentage
func FormatConfidence(c *float64) string {
	if c == nil {
		return ""
	}
	return strconv.Itoa(int(*c*100+0.5)) + "%"
}
