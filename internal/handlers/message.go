package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/AnshRaj112/sparklink-backend/internal/media"
	"github.com/AnshRaj112/sparklink-backend/internal/pkg/response"
	"github.com/AnshRaj112/sparklink-backend/internal/services"
)

type MessageHandler struct {
	messages *services.MessageService
	receiver Receiver
	log      *zap.SugaredLogger
}

func NewMessageHandler(messages *services.MessageService, receiver Receiver, log *zap.SugaredLogger) *MessageHandler {
	return &MessageHandler{messages: messages, receiver: receiver, log: log}
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	upload, err := receive(h.receiver, r, media.MessagePolicy)
	if err != nil {
		fail(h.log, w, r, err)
		return
	}
	defer upload.Cleanup()

	msg, err := h.messages.Send(r.Context(), userID, services.SendMessageInput{
		ToUserID: upload.Value("to_user_id"),
		Text:     upload.Value("text"),
		Image:    firstFile(upload, "image"),
	})
	if err != nil {
		fail(h.log, w, r, err)
		return
	}
	response.OK(w, response.Fields{"message": msg})
}

type threadRequest struct {
	ToUserID string `json:"to_user_id" validate:"required"`
}

// Thread returns the conversation with to_user_id and marks what that user
// sent as seen.
func (h *MessageHandler) Thread(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req threadRequest
	if err := decodeJSON(r, &req, map[string]string{"to_user_id": "Recipient is required"}); err != nil {
		fail(h.log, w, r, err)
		return
	}
	messages, err := h.messages.Thread(r.Context(), userID, req.ToUserID)
	if err != nil {
		fail(h.log, w, r, err)
		return
	}
	response.OK(w, response.Fields{"messages": messages})
}

func (h *MessageHandler) Recent(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	messages, err := h.messages.Recent(r.Context(), userID)
	if err != nil {
		fail(h.log, w, r, err)
		return
	}
	response.OK(w, response.Fields{"messages": messages})
}
