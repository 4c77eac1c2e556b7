package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/AnshRaj112/sparklink-backend/internal/media"
	"github.com/AnshRaj112/sparklink-backend/internal/pkg/response"
	"github.com/AnshRaj112/sparklink-backend/internal/services"
)

type UserHandler struct {
	identity *services.IdentityService
	users    *services.UserService
	posts    *services.PostService
	receiver Receiver
	log      *zap.SugaredLogger
}

func NewUserHandler(
	identity *services.IdentityService,
	users *services.UserService,
	posts *services.PostService,
	receiver Receiver,
	log *zap.SugaredLogger,
) *UserHandler {
	return &UserHandler{identity: identity, users: users, posts: posts, receiver: receiver, log: log}
}

// Data returns the caller's profile, creating it from the identity provider
// on first access.
func (h *UserHandler) Data(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, _, err := h.identity.EnsureUser(r.Context(), userID)
	if err != nil {
		fail(h.log, w, r, err)
		return
	}
	response.OK(w, response.Fields{"user": user})
}

func (h *UserHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, created, err := h.identity.EnsureUser(r.Context(), userID)
	if err != nil {
		fail(h.log, w, r, err)
		return
	}
	message := "User already synced"
	if created {
		message = "User synced successfully"
	}
	response.OK(w, response.Fields{"user": user, "message": message})
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	upload, err := receive(h.receiver, r, media.UserPolicy)
	if err != nil {
		fail(h.log, w, r, err)
		return
	}
	defer upload.Cleanup()

	user, err := h.users.UpdateProfile(r.Context(), userID, services.UpdateProfileInput{
		Username: upload.Value("username"),
		Bio:      upload.Value("bio"),
		Location: upload.Value("location"),
		FullName: upload.Value("full_name"),
		Profile:  firstFile(upload, "profile"),
		Cover:    firstFile(upload, "cover"),
	})
	if err != nil {
		fail(h.log, w, r, err)
		return
	}
	response.OK(w, response.Fields{"user": user, "message": "Profile updated successfully"})
}

type discoverRequest struct {
	Input string `json:"input" validate:"required"`
}

func (h *UserHandler) Discover(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req discoverRequest
	if err := decodeJSON(r, &req, map[string]string{"input": "Search input is required"}); err != nil {
		fail(h.log, w, r, err)
		return
	}
	users, err := h.users.Discover(r.Context(), userID, req.Input)
	if err != nil {
		fail(h.log, w, r, err)
		return
	}
	response.OK(w, response.Fields{"users": users})
}

type targetRequest struct {
	ID string `json:"id" validate:"required"`
}

var targetMessages = map[string]string{"id": "User id is required"}

// relation runs one of the follow/connect operations against the {id} in the body.
func (h *UserHandler) relation(op func(r *http.Request, userID, targetID string) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUser(w, r)
		if !ok {
			return
		}
		var req targetRequest
		if err := decodeJSON(r, &req, targetMessages); err != nil {
			fail(h.log, w, r, err)
			return
		}
		message, err := op(r, userID, req.ID)
		if err != nil {
			fail(h.log, w, r, err)
			return
		}
		response.Message(w, message)
	}
}

func (h *UserHandler) Follow(w http.ResponseWriter, r *http.Request) {
	h.relation(func(r *http.Request, userID, targetID string) (string, error) {
		return h.users.Follow(r.Context(), userID, targetID)
	})(w, r)
}

func (h *UserHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	h.relation(func(r *http.Request, userID, targetID string) (string, error) {
		return h.users.Unfollow(r.Context(), userID, targetID)
	})(w, r)
}

func (h *UserHandler) Connect(w http.ResponseWriter, r *http.Request) {
	h.relation(func(r *http.Request, userID, targetID string) (string, error) {
		return h.users.RequestConnection(r.Context(), userID, targetID)
	})(w, r)
}

// Accept accepts the request sent by the user in the body's id.
func (h *UserHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.relation(func(r *http.Request, userID, fromID string) (string, error) {
		return h.users.AcceptConnection(r.Context(), userID, fromID)
	})(w, r)
}

func (h *UserHandler) Connections(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	view, err := h.users.Connections(r.Context(), userID)
	if err != nil {
		fail(h.log, w, r, err)
		return
	}
	response.OK(w, response.Fields{
		"connections":        view.Connections,
		"followers":          view.Followers,
		"following":          view.Following,
		"pendingConnections": view.PendingConnections,
	})
}

type profileRequest struct {
	ProfileID string `json:"profileId" validate:"required"`
}

// Profiles is public: any caller can view a profile and its posts.
func (h *UserHandler) Profiles(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(r, &req, map[string]string{"profileId": "Profile ID is required"}); err != nil {
		fail(h.log, w, r, err)
		return
	}
	profile, posts, err := h.posts.Profile(r.Context(), req.ProfileID)
	if err != nil {
		fail(h.log, w, r, err)
		return
	}
	response.OK(w, response.Fields{"profile": profile, "posts": posts, "count": len(posts)})
}
