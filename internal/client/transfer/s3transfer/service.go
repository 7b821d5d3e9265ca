// Package s3transfer implements transfer.Service on S3 multipart uploads.
//
// Parts are uploaded sequentially. After every part the handle emits a
// progress event whose resume token lists the upload id and the parts
// confirmed so far; a later handle given that token asks S3 which parts
// really exist and continues from the longest consistent prefix.
package s3transfer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/docuploader/internal/client/transfer"
	"github.com/dmitrijs2005/docuploader/internal/logging"
)

const (
	MinPartSize     int64 = 5 << 20
	DefaultPartSize int64 = 8 << 20
)

// API is the subset of *s3.Client the service uses.
type API interface {
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	ListParts(ctx context.Context, in *s3.ListPartsInput, optFns ...func(*s3.Options)) (*s3.ListPartsOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type Config struct {
	Region        string
	Bucket        string
	BaseEndpoint  string
	AccessKey     string
	SecretKey     string
	PartSize      int64
	PublicBaseURL string
}

type Service struct {
	api      API
	bucket   string
	partSize int64
	baseURL  string
	log      logging.Logger
}

// New builds an S3 client from cfg. Static credentials are used when both
// keys are set, otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg Config, log logging.Logger) (*Service, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is not configured")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
			// S3-compatible stores such as MinIO need path-style addressing
			o.UsePathStyle = true
		}
	})

	return NewWithAPI(client, cfg, log), nil
}

func NewWithAPI(api API, cfg Config, log logging.Logger) *Service {
	partSize := cfg.PartSize
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	if partSize < MinPartSize {
		partSize = MinPartSize
	}
	return &Service{
		api:      api,
		bucket:   cfg.Bucket,
		partSize: partSize,
		baseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
		log:      log.With("component", "s3transfer", "bucket", cfg.Bucket),
	}
}

// Open checks the payload and prepares a handle. No network traffic happens
// until Start.
func (s *Service) Open(ctx context.Context, req transfer.Request) (transfer.Handle, error) {
	if req.RemotePath == "" {
		return nil, fmt.Errorf("%w: empty remote path", transfer.ErrInvalidFile)
	}
	fi, err := os.Stat(req.Payload.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transfer.ErrInvalidFile, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", transfer.ErrInvalidFile, req.Payload.Path)
	}
	if fi.Size() != req.Payload.Size {
		return nil, fmt.Errorf("%w: payload changed size (%d != %d)", transfer.ErrInvalidFile, fi.Size(), req.Payload.Size)
	}

	return newHandle(s, req), nil
}

// Reference builds the access reference of key.
func (s *Service) Reference(key string) string {
	if s.baseURL != "" {
		return s.baseURL + "/" + key
	}
	return "s3://" + s.bucket + "/" + key
}

// KeyOf is the inverse of Reference.
func (s *Service) KeyOf(ref string) (string, error) {
	prefixes := []string{"s3://" + s.bucket + "/"}
	if s.baseURL != "" {
		prefixes = append(prefixes, s.baseURL+"/")
	}
	for _, p := range prefixes {
		if strings.HasPrefix(ref, p) && len(ref) > len(p) {
			return strings.TrimPrefix(ref, p), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidReference, ref)
}

func (s *Service) DeleteReference(ctx context.Context, ref string) error {
	key, err := s.KeyOf(ref)
	if err != nil {
		return err
	}
	_, err = s.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return newObjectError("delete", s.bucket, key, err)
	}
	s.log.Info(ctx, "object deleted", "key", key)
	return nil
}
