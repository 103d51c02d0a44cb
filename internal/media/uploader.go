package media

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/hb-library/library-api/internal/config"
	apperrors "github.com/hb-library/library-api/pkg/errors"
)

// MaxUploadBytes caps avatar and cover uploads.
const MaxUploadBytes = 5 * 1024 * 1024

// extensions maps the accepted image content types to the stored
// object extension.
var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ObjectPutter is the slice of the S3 API the uploader needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader stores avatar and cover images in S3 and hands back the
// public URL to persist on the owning record.
type Uploader struct {
	client        ObjectPutter
	bucket        string
	publicBaseURL string
	logger        *logrus.Logger
}

func NewUploader(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Uploader, error) {
	var awsCfg aws.Config
	var err error

	if cfg.AWS.Profile != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Media.Region),
			awsconfig.WithSharedConfigProfile(cfg.AWS.Profile),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Media.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	baseURL := cfg.Media.PublicBaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Media.Bucket, cfg.Media.Region)
	}

	logger.WithFields(logrus.Fields{
		"bucket": cfg.Media.Bucket,
		"region": cfg.Media.Region,
	}).Info("S3 uploader initialized")

	return &Uploader{
		client:        s3.NewFromConfig(awsCfg),
		bucket:        cfg.Media.Bucket,
		publicBaseURL: baseURL,
		logger:        logger,
	}, nil
}

// NewUploaderWithClient wires a preconstructed client, used by tests.
func NewUploaderWithClient(client ObjectPutter, bucket, publicBaseURL string, logger *logrus.Logger) *Uploader {
	return &Uploader{
		client:        client,
		bucket:        bucket,
		publicBaseURL: publicBaseURL,
		logger:        logger,
	}
}

// UploadAvatar stores a user's avatar image and returns its public URL.
// Re-uploading overwrites the previous avatar at the same key.
func (u *Uploader) UploadAvatar(ctx context.Context, userID string, data []byte, contentType string) (string, error) {
	return u.upload(ctx, "avatars", userID, data, contentType)
}

// UploadCover stores a book cover image and returns its public URL.
func (u *Uploader) UploadCover(ctx context.Context, bookID string, data []byte, contentType string) (string, error) {
	return u.upload(ctx, "covers", bookID, data, contentType)
}

func (u *Uploader) upload(ctx context.Context, prefix, ownerID string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", apperrors.New(apperrors.CodeInvalidArgument, "upload is empty", nil)
	}
	if len(data) > MaxUploadBytes {
		return "", apperrors.New(apperrors.CodeInvalidArgument,
			fmt.Sprintf("upload exceeds %d bytes", MaxUploadBytes), nil)
	}

	ext, ok := extensions[contentType]
	if !ok {
		return "", apperrors.New(apperrors.CodeInvalidArgument,
			fmt.Sprintf("unsupported content type %q", contentType), nil)
	}

	key := path.Join(prefix, ownerID+ext)

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		u.logger.WithError(err).WithFields(logrus.Fields{
			"bucket": u.bucket,
			"key":    key,
		}).Error("S3 upload failed")
		return "", apperrors.New(apperrors.CodeStoreUnavailable, "media storage unavailable", err)
	}

	url := u.publicBaseURL + "/" + key
	u.logger.WithFields(logrus.Fields{
		"key":  key,
		"size": len(data),
	}).Debug("Media object stored")

	return url, nil
}
