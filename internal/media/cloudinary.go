package media

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	apierrors "github.com/AnshRaj112/sparklink-backend/internal/pkg/errors"
)

type CloudinaryCDN struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinaryCDN(cloudName, apiKey, apiSecret string) (*CloudinaryCDN, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true

	return &CloudinaryCDN{cld: cld}, nil
}

// Upload stores the asset and returns its delivery URL. Images with a width
// are delivered as q_auto/f_webp/w_<width>; everything else is delivered as
// uploaded.
func (c *CloudinaryCDN) Upload(ctx context.Context, r io.Reader, opts UploadOptions) (string, error) {
	res, err := c.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		Folder:       opts.Folder,
		ResourceType: "auto", // Automatically detect image, video, or raw
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to Cloudinary: %w", err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("failed to upload to Cloudinary: %s", res.Error.Message)
	}

	if opts.Width <= 0 || res.ResourceType != "image" {
		return res.SecureURL, nil
	}

	asset, err := c.cld.Image(res.PublicID)
	if err != nil {
		return "", fmt.Errorf("build delivery url: %w", err)
	}
	asset.Transformation = Transformation(opts.Width)
	url, err := asset.String()
	if err != nil {
		return "", fmt.Errorf("build delivery url: %w", err)
	}
	return url, nil
}

// Transformation is the delivery transformation for an image of the given width.
func Transformation(width int) string {
	return strings.Join([]string{"q_auto", "f_webp", fmt.Sprintf("w_%d", width)}, "/")
}

// UnavailableCDN is used when no CDN credentials are configured; every upload
// fails with 503.
type UnavailableCDN struct{}

func (UnavailableCDN) Upload(context.Context, io.Reader, UploadOptions) (string, error) {
	return "", apierrors.ErrServiceUnavailable.WithMessage("Media uploads are not configured")
}
