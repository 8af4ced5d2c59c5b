// Package mailbox maintains per-conversation listing state.
//
// A Session owns the most recent unread listing and the 1-based position
// table the agent refers to ("archive email 3"). Every new listing replaces
// the table wholesale, so positions from an older listing fail with
// ErrInvalidPosition instead of silently acting on the wrong message.
//
// Sessions are safe for concurrent use, but positions are only meaningful
// relative to the listing the caller last saw. Separate agent conversations
// must use separate Sessions.
package mailbox
