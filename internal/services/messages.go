package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/AnshRaj112/sparklink-backend/internal/media"
	"github.com/AnshRaj112/sparklink-backend/internal/models"
	apierrors "github.com/AnshRaj112/sparklink-backend/internal/pkg/errors"
	"github.com/AnshRaj112/sparklink-backend/internal/realtime"
	"github.com/AnshRaj112/sparklink-backend/internal/repository"
)

type MessageService struct {
	messages repository.MessageRepository
	users    repository.UserRepository
	media    MediaUploader
	live     realtime.Publisher
	log      *zap.SugaredLogger
}

func NewMessageService(
	messages repository.MessageRepository,
	users repository.UserRepository,
	uploader MediaUploader,
	live realtime.Publisher,
	log *zap.SugaredLogger,
) *MessageService {
	return &MessageService{messages: messages, users: users, media: uploader, live: live, log: log}
}

type SendMessageInput struct {
	ToUserID string
	Text     string
	Image    *media.TempFile
}

// Send persists a message and pushes it, with the sender populated, to the
// recipient's live stream if one is open. A failed push never fails the send.
func (s *MessageService) Send(ctx context.Context, userID string, in SendMessageInput) (*models.Message, error) {
	toUserID := strings.TrimSpace(in.ToUserID)
	if toUserID == "" {
		return nil, apierrors.ErrBadRequest.WithMessage("Recipient is required")
	}
	if in.Image == nil && strings.TrimSpace(in.Text) == "" {
		return nil, apierrors.ErrBadRequest.WithMessage("Message text or image is required")
	}

	msg := &models.Message{
		FromUserID:  userID,
		ToUserID:    toUserID,
		Text:        in.Text,
		MessageType: models.MessageText,
	}
	if in.Image != nil {
		url, err := s.media.Upload(ctx, media.MessagePolicy, in.Image)
		if err != nil {
			return nil, uploadFailed("Message image", err)
		}
		msg.MessageType = models.MessageImage
		msg.MediaURL = url
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	s.push(ctx, msg)
	return msg, nil
}

func (s *MessageService) push(ctx context.Context, msg *models.Message) {
	senders, err := summaries(ctx, s.users, []string{msg.FromUserID})
	if err != nil {
		s.log.Warnw("failed to load sender for live push", "message_id", msg.ID.Hex(), "error", err)
	}
	event := models.MessageView{Message: *msg, FromUser: senders[msg.FromUserID]}

	if err := s.live.Publish(ctx, msg.ToUserID, event); err != nil {
		s.log.Warnw("live push failed", "message_id", msg.ID.Hex(), "to_user_id", msg.ToUserID, "error", err)
	}
}

// Thread returns the conversation between userID and otherID, newest first,
// then marks the messages otherID sent as seen. The returned messages keep the
// seen state they had before the fetch.
func (s *MessageService) Thread(ctx context.Context, userID, otherID string) ([]models.Message, error) {
	if strings.TrimSpace(otherID) == "" {
		return nil, apierrors.ErrBadRequest.WithMessage("Recipient is required")
	}

	messages, err := s.messages.FindThread(ctx, userID, otherID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	if _, err := s.messages.MarkSeen(ctx, otherID, userID); err != nil {
		return nil, fmt.Errorf("mark messages seen: %w", err)
	}
	return messages, nil
}

// Recent returns messages received by userID, newest first, with the sender
// and recipient populated.
func (s *MessageService) Recent(ctx context.Context, userID string) ([]models.MessageView, error) {
	messages, err := s.messages.FindReceived(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	ids := make([]string, 0, len(messages)+1)
	ids = append(ids, userID)
	for _, m := range messages {
		ids = append(ids, m.FromUserID)
	}
	people, err := summaries(ctx, s.users, ids)
	if err != nil {
		return nil, err
	}

	views := make([]models.MessageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, models.MessageView{Message: m, FromUser: people[m.FromUserID], ToUser: people[m.ToUserID]})
	}
	return views, nil
}
