// Package photo stores the optional photo attached to an activity.
package photo

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const MaxSize = 5 << 20

var ErrInvalidPhoto = errors.New("photo must be an image of at most 5 MiB")

type Uploader interface {
	// Upload stores data and returns a URL that can be saved on the activity.
	Upload(ctx context.Context, userID int64, contentType string, data []byte) (string, error)
	// Delete removes a previously uploaded photo by its URL.
	Delete(ctx context.Context, url string) error
}

var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
	"image/heic": "heic",
}

// Validate checks the declared type against the sniffed content and the size
// limit, and returns the file extension to use.
func Validate(contentType string, data []byte) (string, error) {
	if len(data) == 0 || len(data) > MaxSize {
		return "", ErrInvalidPhoto
	}
	contentType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrInvalidPhoto
	}
	sniffed := http.DetectContentType(data)
	if !strings.HasPrefix(sniffed, "image/") && sniffed != "application/octet-stream" {
		return "", ErrInvalidPhoto
	}
	ext, ok := extensions[contentType]
	if !ok {
		ext = "img"
	}
	return ext, nil
}

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint      string
	Bucket        string
	Region        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

func (c S3Config) Configured() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type S3Uploader struct {
	client        s3Client
	bucket        string
	publicBaseURL string
}

func NewS3Uploader(cfg S3Config) *S3Uploader {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return &S3Uploader{
		client:        s3.New(opts),
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
}

func (u *S3Uploader) Upload(ctx context.Context, userID int64, contentType string, data []byte) (string, error) {
	ext, err := Validate(contentType, data)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("activities/%d/%s.%s", userID, uuid.NewString(), ext)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("upload photo: %w", err)
	}
	return u.publicBaseURL + "/" + key, nil
}

func (u *S3Uploader) Delete(ctx context.Context, url string) error {
	key, ok := strings.CutPrefix(url, u.publicBaseURL+"/")
	if !ok {
		return nil
	}
	_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}
	return nil
}

// DataURLStub keeps photos inline as base64 data URLs and never uploads
// anything. It is used when no object store is configured.
type DataURLStub struct{}

func (DataURLStub) Upload(_ context.Context, _ int64, contentType string, data []byte) (string, error) {
	if _, err := Validate(contentType, data); err != nil {
		return "", err
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (DataURLStub) Delete(context.Context, string) error {
	return nil
}
