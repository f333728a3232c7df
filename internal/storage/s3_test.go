package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
	listErr error
	headErr error
	uploads map[string]string
	meta    map[string]map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]string{}, uploads: map[string]string{}, meta: map[string]map[string]string{}}
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := &s3.ListObjectsV2Output{}
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
		}
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(strings.NewReader(body)),
		ContentType: aws.String("application/pdf"),
		Metadata:    map[string]string{"Name": "paper.pdf"},
	}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func (f *fakeS3) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	f.uploads[key] = string(data)
	f.meta[key] = in.Metadata
	return &manager.UploadOutput{Key: in.Key}, nil
}

func newTestClient(f *fakeS3, bucket string) *S3Client {
	return &S3Client{client: f, uploader: f, bucketName: bucket}
}

func TestParseURL(t *testing.T) {
	bucket, key, err := ParseURL("s3://papers/2024/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "papers", bucket)
	assert.Equal(t, "2024/a.pdf", key)

	for _, bad := range []string{"papers/a.pdf", "s3://papers", "s3:///a.pdf", "s3://papers/"} {
		_, _, err := ParseURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestDownload(t *testing.T) {
	f := newFakeS3()
	f.objects["papers/a.pdf"] = "%PDF-1.7"
	c := newTestClient(f, "exports")

	var buf bytes.Buffer
	meta, err := c.Download(context.Background(), "papers", "a.pdf", &buf)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", buf.String())
	assert.EqualValues(t, 8, meta.Size)
	assert.Equal(t, "paper.pdf", meta.OriginalName)
	assert.Equal(t, "application/pdf", meta.ContentType)

	_, err = c.Download(context.Background(), "", "missing.pdf", io.Discard)
	assert.Error(t, err)
}

func TestUploadVersioned(t *testing.T) {
	f := newFakeS3()
	f.objects["exports/s1/figures_v1.pdf"] = ""
	f.objects["exports/s1/figures_v3.pdf"] = ""
	f.objects["exports/s1/figures_vX.pdf"] = ""
	c := newTestClient(f, "exports")

	url, err := c.UploadVersioned(context.Background(), "exports/s1/figures", ".pdf",
		strings.NewReader("deck"), &FileMetadata{ContentType: "application/pdf", OriginalName: "figures.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "s3://exports/exports/s1/figures_v4.pdf", url)
	assert.Equal(t, "deck", f.uploads["exports/s1/figures_v4.pdf"])
	assert.Equal(t, "figures.pdf", f.meta["exports/s1/figures_v4.pdf"]["name"])
}

func TestUploadVersionedListFailure(t *testing.T) {
	f := newFakeS3()
	f.listErr = errors.New("AccessDenied")
	c := newTestClient(f, "exports")

	url, err := c.UploadVersioned(context.Background(), "s1/images", ".zip", strings.NewReader("zip"), nil)
	require.NoError(t, err)
	assert.Equal(t, "s3://exports/s1/images_v1.zip", url)
}

func TestUploadWithoutBucket(t *testing.T) {
	c := newTestClient(newFakeS3(), "")
	_, err := c.Upload(context.Background(), "k", strings.NewReader("x"), nil)
	assert.Error(t, err)
	assert.Error(t, c.Ping(context.Background()))
}

func TestPing(t *testing.T) {
	f := newFakeS3()
	c := newTestClient(f, "exports")
	assert.NoError(t, c.Ping(context.Background()))

	f.headErr = errors.New("NotFound")
	assert.Error(t, c.Ping(context.Background()))
}
