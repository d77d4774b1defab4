package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/petr-muller/civicfeed/internal/civic/api"
	"github.com/petr-muller/civicfeed/internal/civic/model"
)

// DefaultUploadHost is the image host that accepts signed uploads
const DefaultUploadHost = "https://api.cloudinary.com"

// ErrNoImageURL is returned when the image host accepted an upload but did not
// say where the image lives
var ErrNoImageURL = errors.New("No image URL returned by Cloudinary.")

// Signer obtains signed upload credentials from the issue store
type Signer interface {
	SignUpload(ctx context.Context, token string) (model.UploadSignature, error)
}

// Uploader sends images directly to the image host using credentials signed
// by the issue store
type Uploader struct {
	signer Signer
	host   *api.Client
}

// NewUploader creates an uploader posting to host, DefaultUploadHost when empty
func NewUploader(signer Signer, host string, opts ...api.Option) *Uploader {
	if host == "" {
		host = DefaultUploadHost
	}
	return &Uploader{signer: signer, host: api.NewClient(host, opts...)}
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
}

// Upload validates img, signs the upload and returns the hosted image URL
func (u *Uploader) Upload(ctx context.Context, img Image, token string) (string, error) {
	if err := ValidateImage(img); err != nil {
		return "", err
	}

	sig, err := u.signer.SignUpload(ctx, token)
	if err != nil {
		return "", err
	}

	body, contentType, err := uploadForm(img, sig)
	if err != nil {
		return "", err
	}

	var resp uploadResponse
	path := "/v1_1/" + url.PathEscape(sig.CloudName) + "/image/upload"
	if err := u.host.Do(ctx, http.MethodPost, path, api.RawBody{ContentType: contentType, Data: body}, "", &resp); err != nil {
		return "", fmt.Errorf("image upload failed: %w", err)
	}
	if resp.SecureURL == "" {
		return "", ErrNoImageURL
	}
	return resp.SecureURL, nil
}

func uploadForm(img Image, sig model.UploadSignature) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := img.Name
	if name == "" {
		name = "image"
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("cannot build upload form: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", fmt.Errorf("cannot build upload form: %w", err)
	}

	fields := []struct{ key, value string }{
		{"api_key", sig.APIKey.String()},
		{"timestamp", strconv.FormatInt(sig.Timestamp, 10)},
		{"signature", sig.Signature},
		{"folder", sig.Folder},
	}
	for _, f := range fields {
		if err := w.WriteField(f.key, f.value); err != nil {
			return nil, "", fmt.Errorf("cannot build upload form: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("cannot build upload form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
