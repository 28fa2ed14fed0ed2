package chatsync

import (
	"time"

	"github.com/soyeahso/duet/internal/domain"
)

// MessageDocument is the stored shape of a chat message. GroupID and
// GroupName are the queryable metadata fields.
type MessageDocument struct {
	DocID       string `json:"_id,omitempty"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	GroupID     string `json:"groupId"`
	GroupName   string `json:"groupName"`
	MessageID   string `json:"messageId"`
	MessageText string `json:"messageText"`
	FromDID     string `json:"fromDid"`
	FromName    string `json:"fromName"`
	SentAt      int64  `json:"sentAt"` // unix milliseconds
	AIGenerated bool   `json:"aiGenerated"`
}

// GroupDocument is the stored conversation header. OwnerDID tags the
// header with the user who wrote it so each user can list their own.
type GroupDocument struct {
	DocID        string               `json:"_id,omitempty"`
	Name         string               `json:"name"`
	GroupID      string               `json:"groupId"`
	GroupName    string               `json:"groupName"`
	OwnerDID     string               `json:"ownerDid"`
	Participants []domain.Participant `json:"participants"`
	LastMessage  string               `json:"lastMessage,omitempty"`
	UnreadCount  int                  `json:"unreadCount"`
	UpdatedAt    int64                `json:"updatedAt"` // unix milliseconds
}

const messageTypeSend = "send"

// ToDocument converts a local message into its stored shape.
func ToDocument(msg domain.Message, conversationID, conversationName string) MessageDocument {
	return MessageDocument{
		Name:        msg.Content,
		Type:        messageTypeSend,
		GroupID:     conversationID,
		GroupName:   conversationName,
		MessageID:   msg.ID,
		MessageText: msg.Content,
		FromDID:     msg.SenderDID,
		FromName:    msg.SenderName,
		SentAt:      msg.Timestamp.UnixMilli(),
		AIGenerated: msg.IsAIGenerated,
	}
}

// FromDocument converts a stored message into a confirmed local message.
// Documents written without a client message id fall back to the store id.
func FromDocument(doc MessageDocument) domain.Message {
	id := doc.MessageID
	if id == "" {
		id = doc.DocID
	}
	return domain.Message{
		ID:            id,
		Content:       doc.MessageText,
		SenderDID:     doc.FromDID,
		SenderName:    doc.FromName,
		Timestamp:     time.UnixMilli(doc.SentAt).UTC(),
		IsAIGenerated: doc.AIGenerated,
		Status:        domain.StatusConfirmed,
	}
}

// toGroupDocument converts a header into its stored shape.
func toGroupDocument(h domain.ConversationHeader, owner string) GroupDocument {
	return GroupDocument{
		Name:         h.Name,
		GroupID:      h.ID,
		GroupName:    h.Name,
		OwnerDID:     owner,
		Participants: h.Participants,
		LastMessage:  h.LastMessage,
		UnreadCount:  h.UnreadCount,
		UpdatedAt:    h.UpdatedAt.UnixMilli(),
	}
}

func fromGroupDocument(doc GroupDocument) domain.ConversationHeader {
	return domain.ConversationHeader{
		ID:           doc.GroupID,
		Name:         doc.GroupName,
		Participants: doc.Participants,
		LastMessage:  doc.LastMessage,
		UnreadCount:  doc.UnreadCount,
		UpdatedAt:    time.UnixMilli(doc.UpdatedAt).UTC(),
	}
}
