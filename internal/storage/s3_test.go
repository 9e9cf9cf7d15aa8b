package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// mockS3Client implements S3API for unit testing. The mutex matters: the
// multipart uploader issues UploadPart calls concurrently.
type mockS3Client struct {
	mu sync.Mutex
	// objects stores all objects keyed by their S3 key.
	objects map[string][]byte
	// multipartUploads tracks active multipart uploads.
	multipartUploads map[string]map[int32][]byte
	// nextUploadID is the counter for generating upload IDs.
	nextUploadID int
	// putObjectCalls tracks the number of PutObject calls for verification.
	putObjectCalls int
	// headErr, when set, is returned from HeadObject unconditionally.
	headErr error
	// listErr, when set, is returned from ListObjectsV2 unconditionally.
	listErr error
}

func newMockS3Client() *mockS3Client {
	return &mockS3Client{
		objects:          make(map[string][]byte),
		multipartUploads: make(map[string]map[int32][]byte),
	}
}

// mockAPIError implements smithy.APIError for error-mapping tests.
type mockAPIError struct {
	code       string
	message    string
	httpStatus int
}

func (e *mockAPIError) Error() string                { return fmt.Sprintf("%s: %s", e.code, e.message) }
func (e *mockAPIError) ErrorCode() string            { return e.code }
func (e *mockAPIError) ErrorMessage() string         { return e.message }
func (e *mockAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }
func (e *mockAPIError) HTTPStatusCode() int          { return e.httpStatus }

func (m *mockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.headErr != nil {
		return nil, m.headErr
	}
	key := aws.ToString(params.Key)
	data, ok := m.objects[key]
	if !ok {
		return nil, &mockAPIError{code: "NotFound", message: "Not Found", httpStatus: 404}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (m *mockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := aws.ToString(params.Key)
	data, ok := m.objects[key]
	if !ok {
		return nil, &mockAPIError{code: "NoSuchKey", message: "The specified key does not exist.", httpStatus: 404}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putObjectCalls++
	m.objects[aws.ToString(params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return &s3.ListObjectsV2Output{}, nil
}

func (m *mockS3Client) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUploadID++
	uploadID := fmt.Sprintf("mock-upload-%d", m.nextUploadID)
	m.multipartUploads[uploadID] = make(map[int32][]byte)
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(uploadID)}, nil
}

func (m *mockS3Client) UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	upload, ok := m.multipartUploads[aws.ToString(params.UploadId)]
	if !ok {
		return nil, &mockAPIError{code: "NoSuchUpload", message: "upload not found", httpStatus: 404}
	}
	upload[aws.ToInt32(params.PartNumber)] = data
	etag := fmt.Sprintf(`"part-%d"`, aws.ToInt32(params.PartNumber))
	return &s3.UploadPartOutput{ETag: aws.String(etag)}, nil
}

func (m *mockS3Client) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	uploadID := aws.ToString(params.UploadId)
	upload, ok := m.multipartUploads[uploadID]
	if !ok {
		return nil, &mockAPIError{code: "NoSuchUpload", message: "upload not found", httpStatus: 404}
	}
	var assembled []byte
	for _, part := range params.MultipartUpload.Parts {
		assembled = append(assembled, upload[aws.ToInt32(part.PartNumber)]...)
	}
	m.objects[aws.ToString(params.Key)] = assembled
	delete(m.multipartUploads, uploadID)
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (m *mockS3Client) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.multipartUploads, aws.ToString(params.UploadId))
	return &s3.AbortMultipartUploadOutput{}, nil
}

func newTestS3Backend(mock *mockS3Client) *S3Backend {
	return NewS3BackendWithClient("test-bucket", 30*time.Second, mock)
}

func TestS3ExistsMiss(t *testing.T) {
	b := newTestS3Backend(newMockS3Client())

	ok, err := b.Exists(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Exists() error: %v", err)
	}
	if ok {
		t.Error("Exists() = true for missing key")
	}
}

func TestS3ExistsErrorIsNotMiss(t *testing.T) {
	mock := newMockS3Client()
	mock.headErr = &mockAPIError{code: "SlowDown", message: "throttled", httpStatus: 503}
	b := newTestS3Backend(mock)

	_, err := b.Exists(context.Background(), "key")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Exists() on 503 = %v, want ErrUnavailable", err)
	}
}

func TestS3PutKnownLengthRoundTrip(t *testing.T) {
	mock := newMockS3Client()
	b := newTestS3Backend(mock)
	ctx := context.Background()

	payload := []byte("Hello")
	if err := b.Put(ctx, "ci/abc123", bytes.NewReader(payload), int64(len(payload))); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if mock.putObjectCalls != 1 {
		t.Errorf("putObjectCalls = %d, want 1 (single-shot path)", mock.putObjectCalls)
	}

	ok, err := b.Exists(ctx, "ci/abc123")
	if err != nil || !ok {
		t.Fatalf("Exists() = %v, %v; want true, nil", ok, err)
	}

	r, err := b.Get(ctx, "ci/abc123")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	defer r.Close()
	got, _ := io.ReadAll(r)
	if !bytes.Equal(got, payload) {
		t.Errorf("Get() body = %q, want %q", got, payload)
	}
}

func TestS3PutUnknownLengthUsesUploader(t *testing.T) {
	mock := newMockS3Client()
	b := newTestS3Backend(mock)
	ctx := context.Background()

	// 6 MiB forces at least two parts through the multipart uploader.
	payload := make([]byte, 6<<20)
	for i := range payload {
		payload[i] = byte(i % 256)
	}

	if err := b.Put(ctx, "big", bytes.NewReader(payload), SizeUnknown); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if got := mock.objects["big"]; !bytes.Equal(got, payload) {
		t.Fatalf("stored object differs: len %d, want %d", len(got), len(payload))
	}
}

func TestS3GetNotFound(t *testing.T) {
	b := newTestS3Backend(newMockS3Client())

	_, err := b.Get(context.Background(), "never-stored")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() = %v, want ErrNotFound", err)
	}
}

func TestS3Ping(t *testing.T) {
	mock := newMockS3Client()
	b := newTestS3Backend(mock)

	if err := b.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}

	mock.listErr = &mockAPIError{code: "AccessDenied", message: "denied", httpStatus: 403}
	if err := b.Ping(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Ping() on denied = %v, want ErrUnavailable", err)
	}
}

func TestIsS3NotFound(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&mockAPIError{code: "NoSuchKey", httpStatus: 404}, true},
		{&mockAPIError{code: "NotFound", httpStatus: 404}, true},
		{&mockAPIError{code: "SlowDown", httpStatus: 503}, false},
		{errors.New("dial tcp: connection refused"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := isS3NotFound(tc.err); got != tc.want {
			t.Errorf("isS3NotFound(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestS3ErrorMessagesDoNotLeakVendorTypes(t *testing.T) {
	mock := newMockS3Client()
	mock.listErr = &mockAPIError{code: "InternalError", message: "oops", httpStatus: 500}
	b := newTestS3Backend(mock)

	err := b.Ping(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "test-bucket") {
		t.Errorf("error %q should name the bucket for diagnostics", err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("error %q exposes vendor error type %T", err, apiErr)
	}
}
