package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AnshRaj112/sparklink-backend/internal/metrics"
	apierrors "github.com/AnshRaj112/sparklink-backend/internal/pkg/errors"
)

// maxFormValueSize bounds each non-file form value.
const maxFormValueSize = 64 << 10

// CDN uploads a file and returns its public delivery URL.
type CDN interface {
	Upload(ctx context.Context, r io.Reader, opts UploadOptions) (string, error)
}

// UploadOptions tells the CDN where to store an asset and how to deliver it.
type UploadOptions struct {
	Folder string
	// Width of the delivery transformation; 0 delivers the original asset.
	Width int
}

// TempFile is a received file waiting in transient storage.
type TempFile struct {
	Field       Field
	Path        string
	Filename    string
	ContentType string
	Size        int64
}

// Upload is a parsed multipart request: text values plus temp files.
type Upload struct {
	Values map[string]string
	Files  []*TempFile
}

// Value returns a text form value, or "" when absent.
func (u *Upload) Value(key string) string {
	if u == nil {
		return ""
	}
	return u.Values[key]
}

// FilesFor returns the files received for a field, in request order.
func (u *Upload) FilesFor(field string) []*TempFile {
	if u == nil {
		return nil
	}
	var out []*TempFile
	for _, f := range u.Files {
		if f.Field.Name == field {
			out = append(out, f)
		}
	}
	return out
}

// Cleanup removes every temp file that is still on disk.
func (u *Upload) Cleanup() {
	if u == nil {
		return
	}
	for _, f := range u.Files {
		removeTemp(f.Path)
	}
}

// Relay streams uploads to a temp directory, then on to the CDN.
type Relay struct {
	cdn CDN
	dir string
	log *zap.SugaredLogger
}

// NewRelay stores temp files under dir; an empty dir means $TMPDIR/sparklink-uploads.
func NewRelay(cdn CDN, dir string, log *zap.SugaredLogger) (*Relay, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "sparklink-uploads")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Relay{cdn: cdn, dir: dir, log: log}, nil
}

// Receive parses a multipart request under policy. On any violation every file
// already written is removed and an *APIError is returned. A request that is
// not multipart yields an empty Upload.
func (r *Relay) Receive(req *http.Request, policy Policy) (*Upload, error) {
	upload := &Upload{Values: map[string]string{}}

	mr, err := req.MultipartReader()
	if errors.Is(err, http.ErrNotMultipart) {
		return upload, nil
	}
	if err != nil {
		return nil, apierrors.ErrBadRequest.WithMessage("Failed to parse form")
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return r.reject(upload, policy, apierrors.ErrBadRequest.WithMessage("Failed to parse form"))
		}

		name := part.FormName()
		if part.FileName() == "" {
			value, err := io.ReadAll(io.LimitReader(part, maxFormValueSize))
			part.Close()
			if err != nil {
				return r.reject(upload, policy, apierrors.ErrBadRequest.WithMessage("Failed to parse form"))
			}
			upload.Values[name] = string(value)
			continue
		}

		field, ok := policy.Resolve(name)
		if !ok {
			part.Close()
			return r.reject(upload, policy, apierrors.ErrBadRequest.WithMessage(
				fmt.Sprintf("Invalid field name: %s. %s", name, policy.FieldError)))
		}
		if len(upload.Files) >= policy.MaxFiles {
			part.Close()
			return r.reject(upload, policy, apierrors.ErrBadRequest.WithMessage("Too many files"))
		}
		contentType := part.Header.Get("Content-Type")
		if !policy.AllowsMIME(contentType) {
			part.Close()
			return r.reject(upload, policy, apierrors.ErrBadRequest.WithMessage(policy.MIMEError))
		}

		tf, err := r.writeTemp(part, field, contentType, policy.MaxFileSize)
		part.Close()
		if tf != nil {
			upload.Files = append(upload.Files, tf)
		}
		if err != nil {
			return r.reject(upload, policy, err)
		}
	}
	return upload, nil
}

func (r *Relay) writeTemp(part *multipart.Part, field Field, contentType string, maxSize int64) (*TempFile, error) {
	filename := part.FileName()
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = exts[0]
		}
	}

	name := fmt.Sprintf("%s-%d-%s%s", field.Name, time.Now().UnixMilli(), uuid.NewString(), ext)
	path := filepath.Join(r.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tf := &TempFile{Field: field, Path: path, Filename: filename, ContentType: contentType}

	n, copyErr := io.Copy(f, io.LimitReader(part, maxSize+1))
	closeErr := f.Close()
	tf.Size = n
	switch {
	case copyErr != nil:
		return tf, apierrors.ErrBadRequest.WithMessage("Failed to read file")
	case closeErr != nil:
		return tf, fmt.Errorf("write temp file: %w", closeErr)
	case n > maxSize:
		return tf, apierrors.ErrPayloadTooLarge
	}
	return tf, nil
}

func (r *Relay) reject(upload *Upload, policy Policy, err error) (*Upload, error) {
	upload.Cleanup()
	metrics.MediaUploads.WithLabelValues(policy.Context, "rejected").Inc()
	if r.log != nil {
		r.log.Infow("upload rejected", "context", policy.Context, "error", err)
	}
	return nil, err
}

// Upload sends a temp file to the CDN and returns the delivery URL. The temp
// file is removed whether or not the upload succeeds.
func (r *Relay) Upload(ctx context.Context, policy Policy, tf *TempFile) (string, error) {
	defer removeTemp(tf.Path)

	f, err := os.Open(tf.Path)
	if err != nil {
		metrics.MediaUploads.WithLabelValues(policy.Context, "error").Inc()
		return "", fmt.Errorf("open temp file: %w", err)
	}
	defer f.Close()

	url, err := r.cdn.Upload(ctx, f, UploadOptions{Folder: tf.Field.Folder, Width: tf.Field.Width})
	if err != nil {
		metrics.MediaUploads.WithLabelValues(policy.Context, "error").Inc()
		if r.log != nil {
			r.log.Errorw("cdn upload failed", "context", policy.Context, "field", tf.Field.Name, "error", err)
		}
		return "", fmt.Errorf("upload %s: %w", tf.Field.Name, err)
	}
	metrics.MediaUploads.WithLabelValues(policy.Context, "ok").Inc()
	return url, nil
}

// UploadAll uploads files in order. On the first failure the remaining files
// are removed without being sent.
func (r *Relay) UploadAll(ctx context.Context, policy Policy, files []*TempFile) ([]string, error) {
	urls := make([]string, 0, len(files))
	for i, tf := range files {
		url, err := r.Upload(ctx, policy, tf)
		if err != nil {
			for _, rest := range files[i+1:] {
				removeTemp(rest.Path)
			}
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, nil
}

func removeTemp(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		zap.S().Warnw("failed to remove temp upload", "path", path, "error", err)
	}
}
