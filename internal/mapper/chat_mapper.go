package mapper

import (
	"edu-chatbot-be/internal/entity"
	"edu-chatbot-be/internal/model"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

// Session Mappers

func (m *ChatMapper) ChatSessionToEntity(s *model.ChatSession) *entity.ChatSession {
	if s == nil {
		return nil
	}
	return &entity.ChatSession{
		Id:            s.Id,
		SessionId:     s.SessionId,
		UserId:        s.UserId,
		Summary:       s.Summary,
		IsSummarizing: s.IsSummarizing,
		MessageCount:  s.MessageCount,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func (m *ChatMapper) ChatSessionToModel(s *entity.ChatSession) *model.ChatSession {
	if s == nil {
		return nil
	}
	return &model.ChatSession{
		Id:            s.Id,
		SessionId:     s.SessionId,
		UserId:        s.UserId,
		Summary:       s.Summary,
		IsSummarizing: s.IsSummarizing,
		MessageCount:  s.MessageCount,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

// Message Mappers

func (m *ChatMapper) ChatMessageToEntity(msg *model.ChatMessage) *entity.ChatMessage {
	if msg == nil {
		return nil
	}
	return &entity.ChatMessage{
		Id:         msg.Id,
		SessionId:  msg.SessionId,
		Seq:        msg.Seq,
		MessageKey: msg.MessageKey,
		Role:       msg.Role,
		Text:       msg.Text,
		Timestamp:  msg.Timestamp,
	}
}

func (m *ChatMapper) ChatMessageToModel(msg *entity.ChatMessage) *model.ChatMessage {
	if msg == nil {
		return nil
	}
	return &model.ChatMessage{
		Id:         msg.Id,
		SessionId:  msg.SessionId,
		Seq:        msg.Seq,
		MessageKey: msg.MessageKey,
		Role:       msg.Role,
		Text:       msg.Text,
		Timestamp:  msg.Timestamp,
	}
}

func (m *ChatMapper) ChatMessagesToEntities(msgs []*model.ChatMessage) []*entity.ChatMessage {
	out := make([]*entity.ChatMessage, len(msgs))
	for i, msg := range msgs {
		out[i] = m.ChatMessageToEntity(msg)
	}
	return out
}
