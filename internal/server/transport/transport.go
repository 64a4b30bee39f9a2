// Package transport defines the outbound boundary to the chat system that
// carries delivered content, and a Telegram Bot API implementation of it.
// Core components depend only on the Transport interface.
package transport

import "context"

// Transport copies content to recipients and removes delivered copies.
//
// Deliver copies the content identified by contentRef from sourceChannel into
// targetChannel and returns the reference of the created copy (the artifact).
// The artifact reference is what RemoveArtifact later needs; content and
// artifact references live in distinct namespaces even when they look alike.
type Transport interface {
	Deliver(ctx context.Context, sourceChannel, targetChannel, contentRef string) (artifactRef string, err error)
	RemoveArtifact(ctx context.Context, targetChannel, artifactRef string) error
	Notify(ctx context.Context, targetChannel, text string) error
}
