package s3transfer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/docuploader/internal/client/models"
	"github.com/dmitrijs2005/docuploader/internal/client/transfer"
	"github.com/dmitrijs2005/docuploader/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	origLoad, origNew := loadDefaultAWSConfig, newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig, newS3ClientFromConfig = origLoad, origNew
	})

	t.Run("endpoint enables path style", func(t *testing.T) {
		var loadOpts int
		loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
			loadOpts = len(optFns)
			return aws.Config{Region: "eu-north-1"}, nil
		}
		var applied s3.Options
		newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
			for _, fn := range optFns {
				fn(&applied)
			}
			return s3.NewFromConfig(cfg)
		}

		svc, err := New(context.Background(), Config{
			Region:       "eu-north-1",
			Bucket:       "docs",
			BaseEndpoint: "http://localhost:9000",
			AccessKey:    "ak",
			SecretKey:    "sk",
		}, logging.Nop())
		require.NoError(t, err)
		assert.Equal(t, 2, loadOpts)
		assert.Equal(t, "http://localhost:9000", aws.ToString(applied.BaseEndpoint))
		assert.True(t, applied.UsePathStyle)
		assert.Equal(t, DefaultPartSize, svc.partSize)
	})

	t.Run("no static credentials", func(t *testing.T) {
		var loadOpts int
		loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
			loadOpts = len(optFns)
			return aws.Config{}, nil
		}
		var applied s3.Options
		newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
			for _, fn := range optFns {
				fn(&applied)
			}
			return s3.NewFromConfig(cfg)
		}

		_, err := New(context.Background(), Config{Bucket: "docs"}, logging.Nop())
		require.NoError(t, err)
		assert.Equal(t, 1, loadOpts)
		assert.False(t, applied.UsePathStyle)
	})

	t.Run("load error", func(t *testing.T) {
		loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
			return aws.Config{}, errors.New("no config")
		}
		_, err := New(context.Background(), Config{Bucket: "docs"}, logging.Nop())
		require.ErrorContains(t, err, "failed to load AWS config")
	})

	t.Run("missing bucket", func(t *testing.T) {
		_, err := New(context.Background(), Config{}, logging.Nop())
		require.Error(t, err)
	})
}

func TestNewWithAPI_PartSize(t *testing.T) {
	tests := []struct {
		name string
		in   int64
		want int64
	}{
		{"default", 0, DefaultPartSize},
		{"below minimum", 1024, MinPartSize},
		{"custom", 16 << 20, 16 << 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewWithAPI(newFakeS3(), Config{Bucket: "docs", PartSize: tt.in}, logging.Nop())
			assert.Equal(t, tt.want, svc.partSize)
		})
	}
}

func TestService_Open(t *testing.T) {
	svc := newTestService(newFakeS3(), 4)
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("abc"), 0o600))

	tests := []struct {
		name    string
		req     transfer.Request
		wantErr bool
	}{
		{"ok", transfer.Request{RemotePath: "k", Payload: models.Payload{Path: file, Size: 3}}, false},
		{"empty remote path", transfer.Request{Payload: models.Payload{Path: file, Size: 3}}, true},
		{"missing file", transfer.Request{RemotePath: "k", Payload: models.Payload{Path: filepath.Join(dir, "nope"), Size: 3}}, true},
		{"directory", transfer.Request{RemotePath: "k", Payload: models.Payload{Path: dir}}, true},
		{"size changed", transfer.Request{RemotePath: "k", Payload: models.Payload{Path: file, Size: 10}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := svc.Open(context.Background(), tt.req)
			if tt.wantErr {
				require.ErrorIs(t, err, transfer.ErrInvalidFile)
				assert.Equal(t, transfer.CategoryInvalidFile, transfer.Classify(err))
				return
			}
			require.NoError(t, err)
			require.NotNil(t, h)
		})
	}
}

func TestService_References(t *testing.T) {
	plain := newTestService(newFakeS3(), 4)
	assert.Equal(t, "s3://docs/u/a.pdf", plain.Reference("u/a.pdf"))

	cdn := NewWithAPI(newFakeS3(), Config{Bucket: "docs", PublicBaseURL: "https://cdn.example.com/files/"}, logging.Nop())
	assert.Equal(t, "https://cdn.example.com/files/u/a.pdf", cdn.Reference("u/a.pdf"))

	key, err := cdn.KeyOf("https://cdn.example.com/files/u/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "u/a.pdf", key)

	key, err = cdn.KeyOf("s3://docs/u/b.pdf")
	require.NoError(t, err)
	assert.Equal(t, "u/b.pdf", key)

	for _, ref := range []string{"s3://other/u/a.pdf", "https://elsewhere/u/a.pdf", "s3://docs/", ""} {
		_, err := cdn.KeyOf(ref)
		assert.ErrorIs(t, err, ErrInvalidReference, ref)
	}
}

func TestService_DeleteReference(t *testing.T) {
	f := newFakeS3()
	f.objects["u/a.pdf"] = []byte("x")
	svc := newTestService(f, 4)

	require.NoError(t, svc.DeleteReference(context.Background(), "s3://docs/u/a.pdf"))
	_, ok := f.object("u/a.pdf")
	assert.False(t, ok)
	assert.Equal(t, []string{"u/a.pdf"}, f.deleted)

	err := svc.DeleteReference(context.Background(), "s3://other/u/a.pdf")
	assert.ErrorIs(t, err, ErrInvalidReference)
}
