package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/AnshRaj112/sparklink-backend/internal/media"
	"github.com/AnshRaj112/sparklink-backend/internal/pkg/response"
	"github.com/AnshRaj112/sparklink-backend/internal/services"
)

type StoryHandler struct {
	stories  *services.StoryService
	receiver Receiver
	log      *zap.SugaredLogger
}

func NewStoryHandler(stories *services.StoryService, receiver Receiver, log *zap.SugaredLogger) *StoryHandler {
	return &StoryHandler{stories: stories, receiver: receiver, log: log}
}

func (h *StoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	upload, err := receive(h.receiver, r, media.StoryPolicy)
	if err != nil {
		fail(h.log, w, r, err)
		return
	}
	defer upload.Cleanup()

	story, err := h.stories.Create(r.Context(), userID, services.CreateStoryInput{
		Content:         upload.Value("content"),
		MediaType:       upload.Value("media_type"),
		BackgroundColor: upload.Value("background_color"),
		Media:           firstFile(upload, "media"),
	})
	if err != nil {
		fail(h.log, w, r, err)
		return
	}
	response.OK(w, response.Fields{"story": story})
}

func (h *StoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	stories, err := h.stories.Active(r.Context(), userID)
	if err != nil {
		fail(h.log, w, r, err)
		return
	}
	response.OK(w, response.Fields{"stories": stories})
}

type storyViewRequest struct {
	StoryID string `json:"storyId" validate:"required"`
}

func (h *StoryHandler) View(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req storyViewRequest
	if err := decodeJSON(r, &req, map[string]string{"storyId": "Story ID is required"}); err != nil {
		fail(h.log, w, r, err)
		return
	}
	views, err := h.stories.View(r.Context(), userID, req.StoryID)
	if err != nil {
		fail(h.log, w, r, err)
		return
	}
	response.OK(w, response.Fields{"views": views})
}
