package domain

import "time"

// SystemAuthor signs the audit comments appended by lifecycle transitions.
const SystemAuthor = "system"

// Comment is an append-only entry in a ticket thread. Internal comments are
// visible to mentors only.
type Comment struct {
	ID        string
	TicketID  string
	Text      string
	Author    string
	Internal  bool
	CreatedAt time.Time
}

// Origin is the identity and course context a ticket is opened for.
type Origin struct {
	UserHash       string
	CourseID       string
	ModuleID       string
	Title          string
	Description    string
	ConversationID string
}
