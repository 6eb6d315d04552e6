package gossip

import "errors"

var (
	// ErrInvalidInput is returned by Originate for empty or whitespace-only content.
	ErrInvalidInput = errors.New("message content is empty")

	// ErrConnectFailed is returned by Join when the contact cannot be reached
	// or does not answer the membership calls.
	ErrConnectFailed = errors.New("connect to peer failed")

	// ErrClosed is returned by Originate after Close.
	ErrClosed = errors.New("gossiper closed")

	// ErrUnreachable is returned by a Transport when no peer answers at the
	// target address.
	ErrUnreachable = errors.New("peer unreachable")
)
