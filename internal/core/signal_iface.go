package core

// Frame is one encoded outbound message.
type Frame []byte

// SessionID identifies a transport connection, not a player.
type SessionID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
