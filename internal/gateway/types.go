package gateway

import (
	"context"
	"time"
)

// Adapter defines the interface for platform adapters.
type Adapter interface {
	Platform() string
	Connect(ctx context.Context) error
	Send(ctx context.Context, msg *OutboundMessage) error
	OnMessage(handler MessageHandler)
	Publish(ctx context.Context, post *FeedPost) error
	Close() error
}

// ProfileSetter is implemented by adapters that can change how the
// persona appears on their platform. Not every platform supports every
// field; adapters apply what they can.
type ProfileSetter interface {
	SetNickname(ctx context.Context, nickname string) error
	SetSignature(ctx context.Context, signature string) error
	SetAvatar(ctx context.Context, imageURL string) error
}

// MessageHandler processes inbound messages from any platform.
type MessageHandler func(msg *InboundMessage)

// InboundMessage is a normalized message from any platform.
type InboundMessage struct {
	Platform  string    `json:"platform"`
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ReplyTo   string    `json:"reply_to,omitempty"`
}

// OutboundMessage is a reply sent to a specific platform channel.
type OutboundMessage struct {
	Platform  string   `json:"platform"`
	ChannelID string   `json:"channel_id"`
	Content   string   `json:"content"`
	ReplyTo   string   `json:"reply_to,omitempty"`
	ImageURLs []string `json:"image_urls,omitempty"`
}

// PostKind categorizes the persona's feed posts.
type PostKind string

const (
	PostDiary    PostKind = "diary"
	PostInsomnia PostKind = "insomnia"
	PostThought  PostKind = "thought"
)

// FeedPost is one post the persona publishes to its home channels.
type FeedPost struct {
	Kind      PostKind `json:"kind"`
	Content   string   `json:"content"`
	ImageURLs []string `json:"image_urls,omitempty"`
	Platforms []string `json:"platforms,omitempty"`
}
