package core

import "time"

// Message is a chat message already committed to durable storage, as pushed
// to live recipients. The realtime layer never persists it.
type Message struct {
	ID               int64     `json:"id"`
	SenderID         int64     `json:"senderId"`
	SenderName       string    `json:"senderName"`
	SenderProfilePic string    `json:"senderProfilePic,omitempty"`
	ReceiverID       *int64    `json:"receiverId,omitempty"`
	GroupID          *int64    `json:"groupId,omitempty"`
	ChannelID        *int64    `json:"channelId,omitempty"`
	Content          string    `json:"content"`
	MessageType      string    `json:"messageType"`
	MediaURL         string    `json:"mediaUrl,omitempty"`
	FileName         string    `json:"fileName,omitempty"`
	FileSize         *int64    `json:"fileSize,omitempty"`
	ReplyToMessageID *int64    `json:"replyToMessageId,omitempty"`
	IsForwarded      bool      `json:"isForwarded"`
	SentAt           time.Time `json:"sentAt"`
}
