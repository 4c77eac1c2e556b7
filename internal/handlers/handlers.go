// Package handlers holds the HTTP handlers. Handlers only parse requests,
// call a service and render the response envelope.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/AnshRaj112/sparklink-backend/internal/media"
	"github.com/AnshRaj112/sparklink-backend/internal/middleware"
	apierrors "github.com/AnshRaj112/sparklink-backend/internal/pkg/errors"
	"github.com/AnshRaj112/sparklink-backend/internal/pkg/response"
)

const maxJSONBody = 1 << 20

// Receiver parses a multipart upload into temp files.
type Receiver interface {
	Receive(req *http.Request, policy media.Policy) (*media.Upload, error)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads a JSON body into dst and validates it. A failed field is
// reported with its entry in messages, or a generic validation message.
func decodeJSON(r *http.Request, dst any, messages map[string]string) error {
	body := http.MaxBytesReader(nil, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apierrors.ErrBadRequest.WithMessage("Invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field := verrs[0].Field()
			if msg, ok := messages[field]; ok {
				return apierrors.ErrBadRequest.WithMessage(msg)
			}
			return apierrors.NewValidationError(field, "failed on the '"+verrs[0].Tag()+"' rule")
		}
		return apierrors.ErrBadRequest
	}
	return nil
}

// receive parses a multipart upload. JSON and urlencoded bodies are accepted
// too and only fill Values.
func receive(rcv Receiver, r *http.Request, policy media.Policy) (*media.Upload, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		values := map[string]string{}
		body := http.MaxBytesReader(nil, r.Body, maxJSONBody)
		if err := json.NewDecoder(body).Decode(&values); err != nil && !errors.Is(err, io.EOF) {
			return nil, apierrors.ErrBadRequest.WithMessage("Invalid request body")
		}
		return &media.Upload{Values: values}, nil
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, apierrors.ErrBadRequest.WithMessage("Invalid request body")
		}
		values := map[string]string{}
		for k := range r.PostForm {
			values[k] = r.PostForm.Get(k)
		}
		return &media.Upload{Values: values}, nil
	}
	return rcv.Receive(r, policy)
}

func firstFile(u *media.Upload, field string) *media.TempFile {
	if files := u.FilesFor(field); len(files) > 0 {
		return files[0]
	}
	return nil
}

// currentUser returns the caller set by RequireAuth.
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.UserID(r.Context())
	if !ok {
		response.Error(w, apierrors.ErrUnauthorized)
	}
	return id, ok
}

// fail renders err, logging anything that is not a client error.
func fail(log *zap.SugaredLogger, w http.ResponseWriter, r *http.Request, err error) {
	if !apierrors.IsClientError(err) {
		log.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	response.Error(w, err)
}
