package models

import "errors"

// ErrResponseGeneration is returned when the query pipeline fails at any step.
// No partial answer accompanies it.
var ErrResponseGeneration = errors.New("response generation failed")

// Article is a normalized feed item. ID carries the feed's stable identifier
// (GUID) and may be empty; callers fall back to Link when building index keys.
type Article struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Link           string `json:"link"`
	ContentSnippet string `json:"content_snippet"`
}

// IndexMetadata is the payload stored alongside each vector and returned with
// retrieval matches.
type IndexMetadata struct {
	Text  string `json:"text"`
	Title string `json:"title"`
	Link  string `json:"link"`
}

// IndexEntry is one upsert unit for the vector index. Re-upserting the same ID
// overwrites the prior entry.
type IndexEntry struct {
	ID       string
	Vector   []float32
	Metadata IndexMetadata
}

// RetrievalMatch is a similarity hit, Score in [0,1], higher is closer.
type RetrievalMatch struct {
	Score    float64       `json:"score"`
	Metadata IndexMetadata `json:"metadata"`
}

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// ChatTurn is one message in a session history. Turns are appended in
// (user, bot) pairs per exchange.
type ChatTurn struct {
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
}
