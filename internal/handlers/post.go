package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/AnshRaj112/sparklink-backend/internal/media"
	"github.com/AnshRaj112/sparklink-backend/internal/pkg/response"
	"github.com/AnshRaj112/sparklink-backend/internal/services"
)

type PostHandler struct {
	posts    *services.PostService
	receiver Receiver
	log      *zap.SugaredLogger
}

func NewPostHandler(posts *services.PostService, receiver Receiver, log *zap.SugaredLogger) *PostHandler {
	return &PostHandler{posts: posts, receiver: receiver, log: log}
}

func (h *PostHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	upload, err := receive(h.receiver, r, media.PostPolicy)
	if err != nil {
		fail(h.log, w, r, err)
		return
	}
	defer upload.Cleanup()

	post, err := h.posts.Add(r.Context(), userID, services.AddPostInput{
		Content:  upload.Value("content"),
		PostType: upload.Value("post_type"),
		Images:   upload.FilesFor("images"),
	})
	if err != nil {
		fail(h.log, w, r, err)
		return
	}
	response.Created(w, response.Fields{"post": post, "message": "Post created successfully"})
}

func (h *PostHandler) Feed(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	posts, err := h.posts.Feed(r.Context(), userID)
	if err != nil {
		fail(h.log, w, r, err)
		return
	}
	response.OK(w, response.Fields{"posts": posts, "count": len(posts)})
}

type likeRequest struct {
	PostID string `json:"postId" validate:"required"`
}

func (h *PostHandler) Like(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req likeRequest
	if err := decodeJSON(r, &req, map[string]string{"postId": "Post ID is required"}); err != nil {
		fail(h.log, w, r, err)
		return
	}
	res, err := h.posts.ToggleLike(r.Context(), userID, req.PostID)
	if err != nil {
		fail(h.log, w, r, err)
		return
	}
	message := "Post unliked"
	if res.Liked {
		message = "Post liked"
	}
	response.OK(w, response.Fields{"message": message, "liked": res.Liked, "likes_count": res.Likes})
}
