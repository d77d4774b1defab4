package compose

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/petr-muller/civicfeed/internal/civic/model"
)

type fakeSigner struct {
	sig   model.UploadSignature
	err   error
	calls int
	token string
}

func (f *fakeSigner) SignUpload(_ context.Context, token string) (model.UploadSignature, error) {
	f.calls++
	f.token = token
	return f.sig, f.err
}

var testSignature = model.UploadSignature{
	Timestamp: 1700000000,
	Folder:    "issues",
	Signature: "abc123",
	APIKey:    "998877",
	CloudName: "demo",
}

func TestUpload(t *testing.T) {
	img := pngImage(2048)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1_1/demo/image/upload" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Fatalf("cannot parse form: %v", err)
		}
		expected := map[string]string{
			"api_key":   "998877",
			"timestamp": "1700000000",
			"signature": "abc123",
			"folder":    "issues",
		}
		for k, v := range expected {
			if got := r.FormValue(k); got != v {
				t.Errorf("expected field %s=%q, got %q", k, v, got)
			}
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file: %v", err)
		}
		data, _ := io.ReadAll(file)
		if header.Filename != "pothole.png" || len(data) != len(img.Data) {
			t.Errorf("unexpected file %s with %d bytes", header.Filename, len(data))
		}
		_, _ = w.Write([]byte(`{"secure_url":"https://res.example/demo/1.png"}`))
	}))
	defer server.Close()

	signer := &fakeSigner{sig: testSignature}
	uploader := NewUploader(signer, server.URL)

	url, err := uploader.Upload(context.Background(), img, "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://res.example/demo/1.png" {
		t.Errorf("unexpected url %q", url)
	}
	if signer.token != "tok" {
		t.Errorf("expected token to be passed to the signer, got %q", signer.token)
	}
}

func TestUploadFailures(t *testing.T) {
	tests := []struct {
		name       string
		img        Image
		signErr    error
		response   string
		status     int
		expected   error
		signCalled bool
	}{
		{
			name:     "invalid image never signs",
			img:      Image{Data: []byte("hello")},
			expected: nil,
		},
		{
			name:       "signature failure",
			img:        pngImage(100),
			signErr:    errors.New("Failed to get Cloudinary signature."),
			signCalled: true,
		},
		{
			name:       "no secure url",
			img:        pngImage(100),
			response:   `{}`,
			status:     http.StatusOK,
			expected:   ErrNoImageURL,
			signCalled: true,
		},
		{
			name:       "host rejects",
			img:        pngImage(100),
			response:   `{"error":{"message":"Invalid Signature"}}`,
			status:     http.StatusUnauthorized,
			signCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.response))
			}))
			defer server.Close()

			signer := &fakeSigner{sig: testSignature, err: tt.signErr}
			_, err := NewUploader(signer, server.URL).Upload(context.Background(), tt.img, "tok")
			if err == nil {
				t.Fatalf("expected error")
			}
			if tt.expected != nil && !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
			if (signer.calls > 0) != tt.signCalled {
				t.Errorf("expected signer called=%t, got %d calls", tt.signCalled, signer.calls)
			}
		})
	}
}
