package media

import (
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hb-library/library-api/pkg/errors"
)

type capturePutter struct {
	input *s3.PutObjectInput
	err   error
}

func (c *capturePutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	c.input = params
	if c.err != nil {
		return nil, c.err
	}
	return &s3.PutObjectOutput{}, nil
}

func newTestUploader() (*Uploader, *capturePutter) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	putter := &capturePutter{}
	return NewUploaderWithClient(putter, "library-media", "https://cdn.example.com", logger), putter
}

func TestUploadAvatar(t *testing.T) {
	uploader, putter := newTestUploader()

	url, err := uploader.UploadAvatar(context.Background(), "u-1", []byte("fake-png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/avatars/u-1.png", url)

	require.NotNil(t, putter.input)
	assert.Equal(t, "library-media", *putter.input.Bucket)
	assert.Equal(t, "avatars/u-1.png", *putter.input.Key)
	assert.Equal(t, "image/png", *putter.input.ContentType)
}

func TestUploadCover(t *testing.T) {
	uploader, _ := newTestUploader()

	url, err := uploader.UploadCover(context.Background(), "b-1", []byte("fake-jpg"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/covers/b-1.jpg", url)
}

func TestUpload_UnsupportedContentType(t *testing.T) {
	uploader, _ := newTestUploader()

	_, err := uploader.UploadAvatar(context.Background(), "u-1", []byte("gif-data"), "image/gif")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
}

func TestUpload_Empty(t *testing.T) {
	uploader, _ := newTestUploader()

	_, err := uploader.UploadAvatar(context.Background(), "u-1", nil, "image/png")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
}

func TestUpload_TooLarge(t *testing.T) {
	uploader, _ := newTestUploader()

	_, err := uploader.UploadAvatar(context.Background(), "u-1", make([]byte, MaxUploadBytes+1), "image/png")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
}
