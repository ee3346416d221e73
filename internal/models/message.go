package models

import "time"

// Message is a direct message between two portal members. Content and
// AttachmentPath are each optional, but a message must carry at least one of
// them. Sender, receiver and creation time never change after insert.
type Message struct {
	ID             string    `db:"id" json:"id"`
	SenderID       string    `db:"sender_id" json:"sender_id"`
	ReceiverID     string    `db:"receiver_id" json:"receiver_id"`
	Content        string    `db:"content" json:"content,omitempty"`
	AttachmentPath string    `db:"attachment_path" json:"attachment_path,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ConversationWith reports the peer id of the conversation this message
// belongs to, from the point of view of userID.
func (m Message) ConversationWith(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// InConversation reports whether the message belongs to the conversation
// between the two given users, regardless of direction.
func (m Message) InConversation(userA, userB string) bool {
	return (m.SenderID == userA && m.ReceiverID == userB) ||
		(m.SenderID == userB && m.ReceiverID == userA)
}
