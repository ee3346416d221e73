package models

// Feed event kinds delivered over the change feed.
const (
	FeedInsert = "insert"
	FeedUpdate = "update"
	FeedDelete = "delete"
)

// FeedEvent is pushed to every live subscriber whose identity is the sender
// or receiver of the row. Delete events carry a row holding at least the id.
type FeedEvent struct {
	Kind string  `json:"kind"`
	Row  Message `json:"row"`
}
