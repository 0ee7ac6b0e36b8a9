package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/vidproxy/vidproxy/internal/domain/repository"
)

// mockObjectReader implements objectReader interface for testing.
type mockObjectReader struct {
	statFunc func() (minio.ObjectInfo, error)
	data     []byte
	offset   int
	closed   bool
}

func (m *mockObjectReader) Read(p []byte) (n int, err error) {
	if m.offset >= len(m.data) {
		return 0, io.EOF
	}
	n = copy(p, m.data[m.offset:])
	m.offset += n
	return n, nil
}

func (m *mockObjectReader) Close() error {
	m.closed = true
	return nil
}

func (m *mockObjectReader) Stat() (minio.ObjectInfo, error) {
	if m.statFunc != nil {
		return m.statFunc()
	}
	return minio.ObjectInfo{Size: int64(len(m.data)), ContentType: "video/mp4"}, nil
}

// mockMinioClient implements minioClient interface for testing.
type mockMinioClient struct {
	bucketExistsFunc       func(ctx context.Context, bucketName string) (bool, error)
	presignedGetObjectFunc func(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
	getObjectFunc          func(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error)
	statObjectFunc         func(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

func (m *mockMinioClient) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	if m.bucketExistsFunc != nil {
		return m.bucketExistsFunc(ctx, bucketName)
	}
	return true, nil
}

func (m *mockMinioClient) PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error) {
	if m.presignedGetObjectFunc != nil {
		return m.presignedGetObjectFunc(ctx, bucketName, objectName, expiry, reqParams)
	}
	return url.Parse("https://minio.local/" + bucketName + "/" + objectName + "?signed=1")
}

func (m *mockMinioClient) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error) {
	if m.getObjectFunc != nil {
		return m.getObjectFunc(ctx, bucketName, objectName, opts)
	}
	return &mockObjectReader{}, nil
}

func (m *mockMinioClient) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	if m.statObjectFunc != nil {
		return m.statObjectFunc(ctx, bucketName, objectName, opts)
	}
	return minio.ObjectInfo{}, nil
}

func TestNewClient_BucketMissing(t *testing.T) {
	mock := &mockMinioClient{
		bucketExistsFunc: func(ctx context.Context, bucketName string) (bool, error) {
			return false, nil
		},
	}

	_, err := newClientWithMinioClient(context.Background(), mock, "videos")
	if !errors.Is(err, repository.ErrBucketNotFound) {
		t.Errorf("error = %v, want ErrBucketNotFound", err)
	}
}

func TestClient_Download(t *testing.T) {
	body := []byte("mp4 bytes")
	mock := &mockMinioClient{
		getObjectFunc: func(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error) {
			return &mockObjectReader{data: body}, nil
		},
	}

	client, err := newClientWithMinioClient(context.Background(), mock, "videos")
	if err != nil {
		t.Fatalf("newClientWithMinioClient failed: %v", err)
	}

	reader, info, err := client.Download(context.Background(), "clips/sample.mp4")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	defer reader.Close()

	if info.Size != int64(len(body)) {
		t.Errorf("Size = %d, want %d", info.Size, len(body))
	}
	if info.ContentType != "video/mp4" {
		t.Errorf("ContentType = %q, want video/mp4", info.ContentType)
	}

	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("body = %q, want %q", got, body)
	}
}

func TestClient_Download_NotFound(t *testing.T) {
	obj := &mockObjectReader{
		statFunc: func() (minio.ObjectInfo, error) {
			return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey"}
		},
	}
	mock := &mockMinioClient{
		getObjectFunc: func(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (objectReader, error) {
			return obj, nil
		},
	}

	client, err := newClientWithMinioClient(context.Background(), mock, "videos")
	if err != nil {
		t.Fatalf("newClientWithMinioClient failed: %v", err)
	}

	_, _, err = client.Download(context.Background(), "missing.mp4")
	if !errors.Is(err, repository.ErrObjectNotFound) {
		t.Errorf("error = %v, want ErrObjectNotFound", err)
	}
	if !obj.closed {
		t.Error("reader not closed on error path")
	}
}

func TestClient_GeneratePresignedDownloadURL(t *testing.T) {
	mock := &mockMinioClient{}

	client, err := newClientWithMinioClient(context.Background(), mock, "videos")
	if err != nil {
		t.Fatalf("newClientWithMinioClient failed: %v", err)
	}

	signed, err := client.GeneratePresignedDownloadURL(context.Background(), "clips/sample.mp4", time.Minute)
	if err != nil {
		t.Fatalf("GeneratePresignedDownloadURL failed: %v", err)
	}
	if signed == "" {
		t.Error("expected a non-empty URL")
	}
}

func TestClient_Exists(t *testing.T) {
	mock := &mockMinioClient{
		statObjectFunc: func(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
			if objectName == "present.mp4" {
				return minio.ObjectInfo{}, nil
			}
			return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey"}
		},
	}

	client, err := newClientWithMinioClient(context.Background(), mock, "videos")
	if err != nil {
		t.Fatalf("newClientWithMinioClient failed: %v", err)
	}

	ok, err := client.Exists(context.Background(), "present.mp4")
	if err != nil || !ok {
		t.Errorf("Exists(present) = %v, %v, want true, nil", ok, err)
	}
	ok, err = client.Exists(context.Background(), "absent.mp4")
	if err != nil || ok {
		t.Errorf("Exists(absent) = %v, %v, want false, nil", ok, err)
	}
}
