package warehouse

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	headErr   error
	createErr error
	putErr    error
	getErr    error
	deleteErr error
	listErr   error

	created bool
	puts    map[string][]byte
	types   map[string]string
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func (f *fakeS3) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = true
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.puts == nil {
		f.puts = make(map[string][]byte)
		f.types = make(map[string]string)
	}
	f.puts[*in.Key] = data
	f.types[*in.Key] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.puts[*in.Key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	for _, obj := range in.Delete.Objects {
		delete(f.puts, *obj.Key)
		delete(f.types, *obj.Key)
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	keys := make([]string, 0, len(f.puts))
	for k := range f.puts {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, s3types.Object{
			Key:  aws.String(k),
			Size: aws.Int64(int64(len(f.puts[k]))),
		})
	}
	return out, nil
}

func TestS3Client_EnsureBucket(t *testing.T) {
	t.Run("exists", func(t *testing.T) {
		fake := &fakeS3{}
		c := newS3Client(fake, S3Config{Bucket: "b"}, nil)
		if err := c.EnsureBucket(context.Background()); err != nil {
			t.Fatalf("EnsureBucket: %v", err)
		}
		if fake.created {
			t.Error("bucket should not be created when it exists")
		}
	})

	t.Run("missing", func(t *testing.T) {
		fake := &fakeS3{headErr: errors.New("not found")}
		c := newS3Client(fake, S3Config{Bucket: "b"}, nil)
		if err := c.EnsureBucket(context.Background()); err != nil {
			t.Fatalf("EnsureBucket: %v", err)
		}
		if !fake.created {
			t.Error("bucket should be created")
		}
	})

	t.Run("create fails", func(t *testing.T) {
		fake := &fakeS3{headErr: errors.New("not found"), createErr: errors.New("denied")}
		c := newS3Client(fake, S3Config{Bucket: "b"}, nil)
		if err := c.EnsureBucket(context.Background()); err == nil {
			t.Error("expected error")
		}
	})
}

func TestS3Client_Upload(t *testing.T) {
	fake := &fakeS3{}
	c := newS3Client(fake, S3Config{Bucket: "b"}, nil)

	if err := c.Upload(context.Background(), "k", []byte("PAR1")); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if string(fake.puts["k"]) != "PAR1" {
		t.Errorf("stored %q", fake.puts["k"])
	}
	if fake.types["k"] != "application/x-parquet" {
		t.Errorf("content type = %q", fake.types["k"])
	}

	fake.putErr = errors.New("boom")
	if err := c.Upload(context.Background(), "k2", nil); err == nil {
		t.Error("expected upload error")
	}
}

func TestS3Client_HealthCheck(t *testing.T) {
	c := newS3Client(&fakeS3{headErr: errors.New("down")}, S3Config{Bucket: "b"}, nil)
	if err := c.HealthCheck(context.Background()); err == nil {
		t.Error("expected health check error")
	}
}

func TestObjectKey(t *testing.T) {
	p := Partition{AppID: "app", Category: "ad", Year: 2024, Month: 6, Day: 5, Hour: 7}
	got := ObjectKey("media", p, "abc")
	want := "media/app_id=app/category=ad/year=2024/month=06/day=05/hour=07/media_abc.parquet"
	if got != want {
		t.Errorf("ObjectKey = %q, want %q", got, want)
	}
	if !strings.HasSuffix(got, ".parquet") {
		t.Error("key should end in .parquet")
	}
}

func TestS3Client_ListDownloadDelete(t *testing.T) {
	fake := &fakeS3{}
	c := newS3Client(fake, S3Config{Bucket: "b"}, nil)
	ctx := context.Background()

	for _, k := range []string{"media/a/1.parquet", "media/a/2.parquet", "media/a/notes.txt", "other/3.parquet"} {
		if err := c.Upload(ctx, k, []byte(k)); err != nil {
			t.Fatalf("Upload: %v", err)
		}
	}

	objects, err := c.List(ctx, "media/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("listed %d objects, want 2", len(objects))
	}
	if objects[0].Key != "media/a/1.parquet" || objects[0].Size != int64(len("media/a/1.parquet")) {
		t.Errorf("objects[0] = %+v", objects[0])
	}

	data, err := c.Download(ctx, "media/a/2.parquet")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != "media/a/2.parquet" {
		t.Errorf("downloaded %q", data)
	}

	if err := c.Delete(ctx, []string{"media/a/1.parquet", "media/a/2.parquet"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	objects, err = c.List(ctx, "media/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objects) != 0 {
		t.Errorf("listed %d objects after delete", len(objects))
	}

	fake.listErr = errors.New("boom")
	if _, err := c.List(ctx, "media/"); err == nil {
		t.Error("expected list error")
	}
	if _, err := c.Download(ctx, "missing.parquet"); err == nil {
		t.Error("expected download error")
	}
}
