package storage

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Config selects the bucket and credentials. Empty keys fall back to the
// default AWS credential chain.
type Config struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// objectAPI is the subset of the S3 client used here.
type objectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type uploadAPI interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Client downloads source PDFs and uploads exports.
type S3Client struct {
	client     objectAPI
	uploader   uploadAPI
	bucketName string
}

// FileMetadata represents metadata about a stored file
type FileMetadata struct {
	OriginalName string            `json:"original_name"`
	ContentType  string            `json:"content_type"`
	Size         int64             `json:"size"`
	Metadata     map[string]string `json:"metadata"`
}

// NewS3Client creates a new S3 client
func NewS3Client(ctx context.Context, cfg Config) (*S3Client, error) {
	var opts []func(*awscfg.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awscfg.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	cli := s3.NewFromConfig(awsCfg)
	return &S3Client{
		client:     cli,
		uploader:   manager.NewUploader(cli),
		bucketName: cfg.Bucket,
	}, nil
}

// Bucket returns the export bucket.
func (s *S3Client) Bucket() string { return s.bucketName }

// ParseURL splits "s3://bucket/key".
func ParseURL(u string) (bucket, key string, err error) {
	path, ok := strings.CutPrefix(u, "s3://")
	if !ok {
		return "", "", fmt.Errorf("invalid s3 url: %s", u)
	}
	bucket, key, ok = strings.Cut(path, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 url: %s", u)
	}
	return bucket, key, nil
}

// Download streams s3://bucket/key into w. An empty bucket means the
// configured one.
func (s *S3Client) Download(ctx context.Context, bucket, key string, w io.Writer) (*FileMetadata, error) {
	if bucket == "" {
		bucket = s.bucketName
	}
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	n, err := io.Copy(w, result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object: %w", err)
	}

	meta := &FileMetadata{Size: n, Metadata: make(map[string]string)}
	if result.ContentType != nil {
		meta.ContentType = *result.ContentType
	}
	for k, v := range result.Metadata {
		meta.Metadata[strings.ToLower(k)] = v
	}
	meta.OriginalName = meta.Metadata["name"]

	log.Info().Str("bucket", bucket).Str("key", key).Int64("size", n).Msg("downloaded file from S3")
	return meta, nil
}

// Upload stores body under key in the configured bucket and returns its
// s3:// URL.
func (s *S3Client) Upload(ctx context.Context, key string, body io.Reader, meta *FileMetadata) (string, error) {
	if s.bucketName == "" {
		return "", fmt.Errorf("upload %s: bucket not configured", key)
	}
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
		Body:   body,
	}
	if meta != nil {
		if meta.ContentType != "" {
			in.ContentType = aws.String(meta.ContentType)
		}
		in.Metadata = map[string]string{}
		if meta.OriginalName != "" {
			in.Metadata["name"] = meta.OriginalName
		}
		for k, v := range meta.Metadata {
			in.Metadata[k] = v
		}
	}

	if _, err := s.uploader.Upload(ctx, in); err != nil {
		log.Error().Err(err).Str("key", key).Msg("upload failed")
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	url := fmt.Sprintf("s3://%s/%s", s.bucketName, key)
	log.Info().Str("url", url).Msg("uploaded file to S3")
	return url, nil
}

// ListNextVersion returns the next free N for keys shaped baseKey_v{N}ext.
func (s *S3Client) ListNextVersion(ctx context.Context, baseKey, ext string) (int, error) {
	if baseKey == "" {
		return 1, nil
	}

	prefix := baseKey + "_v"
	maxVersion := 0

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 1, fmt.Errorf("list versions failed: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			verStr := strings.TrimSuffix(strings.TrimPrefix(*obj.Key, prefix), ext)
			if n, err := strconv.Atoi(verStr); err == nil && n > maxVersion {
				maxVersion = n
			}
		}
	}
	return maxVersion + 1, nil
}

// UploadVersioned uploads body as baseKey_v{N}ext with the next free N.
func (s *S3Client) UploadVersioned(ctx context.Context, baseKey, ext string, body io.Reader, meta *FileMetadata) (string, error) {
	n, err := s.ListNextVersion(ctx, baseKey, ext)
	if err != nil {
		log.Warn().Err(err).Str("key", baseKey).Msg("version listing failed; using v1")
	}
	return s.Upload(ctx, fmt.Sprintf("%s_v%d%s", baseKey, n, ext), body, meta)
}

// Ping checks that the configured bucket is reachable.
func (s *S3Client) Ping(ctx context.Context) error {
	if s.bucketName == "" {
		return fmt.Errorf("bucket not configured")
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucketName)})
	return err
}
