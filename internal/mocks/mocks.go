package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"portal-chat/internal/models"
	"portal-chat/internal/repositories"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, senderID, receiverID, content, attachmentPath string) (models.Message, error) {
	args := m.Called(ctx, senderID, receiverID, content, attachmentPath)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetConversation(ctx context.Context, userID, peerID string) ([]models.Message, error) {
	args := m.Called(ctx, userID, peerID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) EditMessage(ctx context.Context, messageID, senderID, content string) (models.Message, error) {
	args := m.Called(ctx, messageID, senderID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) DeleteMessage(ctx context.Context, messageID, senderID string) (models.Message, error) {
	args := m.Called(ctx, messageID, senderID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) CountInboundSince(ctx context.Context, receiverID, senderID string, since time.Time) (int, error) {
	args := m.Called(ctx, receiverID, senderID, since)
	return args.Int(0), args.Error(1)
}

type ProfileRepositoryMock struct {
	mock.Mock
}

func (m *ProfileRepositoryMock) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	args := m.Called(ctx)
	var profiles []models.Profile
	if val := args.Get(0); val != nil {
		profiles = val.([]models.Profile)
	}
	return profiles, args.Error(1)
}

func (m *ProfileRepositoryMock) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	args := m.Called(ctx, userID)
	var profile models.Profile
	if val := args.Get(0); val != nil {
		profile = val.(models.Profile)
	}
	return profile, args.Error(1)
}

type SessionRepositoryMock struct {
	mock.Mock
}

func (m *SessionRepositoryMock) Lookup(ctx context.Context, token string) (models.Session, error) {
	args := m.Called(ctx, token)
	var session models.Session
	if val := args.Get(0); val != nil {
		session = val.(models.Session)
	}
	return session, args.Error(1)
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.ProfileRepository = (*ProfileRepositoryMock)(nil)
var _ repositories.SessionRepository = (*SessionRepositoryMock)(nil)
