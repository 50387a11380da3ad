package service

import (
	"context"
	"encoding/base64"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/guido-cesarano/taskhub/pkg/backend"
)

// UploadInput carries either raw bytes (multipart) or a base64 string,
// optionally in data-URI form.
type UploadInput struct {
	Data        []byte
	Base64      string
	ContentType string
}

// UploadResult locates a stored image.
type UploadResult struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	URL    string `json:"url"`
}

// UploadConfig fixes where and how images are stored.
type UploadConfig struct {
	Bucket             string
	Prefix             string
	Extension          string
	DefaultContentType string
	// PublicBase is prepended to bucket/key to build the locator.
	PublicBase string
}

// UploadService stores images under generated keys. It performs no content,
// size or type checks.
type UploadService struct {
	store backend.BlobStore
	cfg   UploadConfig
	newID func() string
}

// NewUploadService returns an UploadService writing to cfg.Bucket.
func NewUploadService(store backend.BlobStore, cfg UploadConfig) *UploadService {
	return &UploadService{
		store: store,
		cfg:   cfg,
		newID: func() string { return uuid.New().String() },
	}
}

var dataURIPrefix = regexp.MustCompile(`^data:(.+?);base64,`)

// UploadImage stores the payload and returns its locator.
func (s *UploadService) UploadImage(ctx context.Context, in UploadInput) (UploadResult, error) {
	data, contentType, err := s.normalize(in)
	if err != nil {
		uploadsTotal.WithLabelValues("invalid").Inc()
		return UploadResult{}, err
	}

	key := s.cfg.Prefix + s.newID() + s.cfg.Extension
	if err := s.store.Put(ctx, s.cfg.Bucket, key, data, contentType); err != nil {
		uploadsTotal.WithLabelValues("storage_failed").Inc()
		return UploadResult{}, &PersistenceError{Op: "put object", Err: err}
	}

	uploadsTotal.WithLabelValues("stored").Inc()
	uploadBytes.Observe(float64(len(data)))
	return UploadResult{
		Bucket: s.cfg.Bucket,
		Key:    key,
		URL:    strings.TrimRight(s.cfg.PublicBase, "/") + "/" + s.cfg.Bucket + "/" + key,
	}, nil
}

// normalize turns the input into raw bytes and picks the content type:
// explicit, then data-URI media type, then the configured default.
func (s *UploadService) normalize(in UploadInput) ([]byte, string, error) {
	contentType := in.ContentType

	if len(in.Data) > 0 {
		if contentType == "" {
			contentType = s.cfg.DefaultContentType
		}
		return in.Data, contentType, nil
	}

	encoded := strings.TrimSpace(in.Base64)
	if encoded == "" {
		return nil, "", &ValidationError{Field: "image", Reason: "is required"}
	}
	if m := dataURIPrefix.FindStringSubmatch(encoded); m != nil {
		encoded = encoded[len(m[0]):]
		if contentType == "" {
			contentType = m[1]
		}
	}
	if contentType == "" {
		contentType = s.cfg.DefaultContentType
	}

	data, err := decodeBase64(encoded)
	if err != nil {
		return nil, "", &ValidationError{Field: "base64", Reason: "is not valid base64"}
	}
	return data, contentType, nil
}

// decodeBase64 accepts the standard and URL-safe alphabets, padded or not.
// Whitespace anywhere in the input is ignored.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	trimmed := strings.TrimRight(s, "=")

	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	if data, rerr := base64.RawStdEncoding.DecodeString(trimmed); rerr == nil {
		return data, nil
	}
	if data, uerr := base64.URLEncoding.DecodeString(s); uerr == nil {
		return data, nil
	}
	if data, rerr := base64.RawURLEncoding.DecodeString(trimmed); rerr == nil {
		return data, nil
	}
	return nil, err
}
