package photo

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	m.types[*input.Key] = *input.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

// pngHeader is enough for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func testUploader(m *mockS3Client) *S3Uploader {
	return &S3Uploader{client: m, bucket: "photos", publicBaseURL: "https://cdn.example.com"}
}

func TestS3Upload(t *testing.T) {
	m := newMockS3()
	u := testUploader(m)

	url, err := u.Upload(context.Background(), 42, "image/png", pngHeader)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(url, "https://cdn.example.com/activities/42/") || !strings.HasSuffix(url, ".png") {
		t.Errorf("url = %q", url)
	}

	key := strings.TrimPrefix(url, "https://cdn.example.com/")
	if !bytes.Equal(m.objects[key], pngHeader) {
		t.Error("stored object does not match upload")
	}
	if m.types[key] != "image/png" {
		t.Errorf("content type = %q", m.types[key])
	}

	if err := u.Delete(context.Background(), url); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := m.objects[key]; ok {
		t.Error("expected object deleted")
	}
}

func TestS3UploadError(t *testing.T) {
	m := newMockS3()
	m.putErr = errors.New("bucket unavailable")

	if _, err := testUploader(m).Upload(context.Background(), 1, "image/png", pngHeader); err == nil {
		t.Fatal("expected upload error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		data        []byte
		wantExt     string
		wantErr     bool
	}{
		{"png", "image/png", pngHeader, "png", false},
		{"jpeg with params", "image/jpeg; charset=binary", []byte("\xff\xd8\xff\xe0 jfif"), "jpg", false},
		{"not an image", "application/pdf", []byte("%PDF-1.4"), "", true},
		{"lying content type", "image/png", []byte("<html><body>hi</body></html>"), "", true},
		{"empty", "image/png", nil, "", true},
		{"too large", "image/png", append(append([]byte{}, pngHeader...), make([]byte, MaxSize)...), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, err := Validate(tt.contentType, tt.data)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPhoto) {
					t.Errorf("err = %v, want ErrInvalidPhoto", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if ext != tt.wantExt {
				t.Errorf("ext = %q, want %q", ext, tt.wantExt)
			}
		})
	}
}

func TestDataURLStub(t *testing.T) {
	var u Uploader = DataURLStub{}

	url, err := u.Upload(context.Background(), 1, "image/png", pngHeader)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("url = %q", url)
	}
	if _, err := u.Upload(context.Background(), 1, "text/plain", []byte("hello")); !errors.Is(err, ErrInvalidPhoto) {
		t.Errorf("err = %v, want ErrInvalidPhoto", err)
	}
}
