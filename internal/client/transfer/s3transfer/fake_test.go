package s3transfer

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type fakeUpload struct {
	key         string
	contentType string
	parts       map[int32][]byte
}

// fakeS3 is an in-memory multipart store.
type fakeS3 struct {
	mu      sync.Mutex
	seq     int
	uploads map[string]*fakeUpload
	objects map[string][]byte
	aborted []string
	deleted []string

	// failPart makes UploadPart fail for that part number once.
	failPart map[int32]error
	// gate, when set, is received from before each UploadPart.
	gate chan struct{}
	// uploadCalls counts UploadPart calls.
	uploadCalls int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		uploads:  map[string]*fakeUpload{},
		objects:  map[string][]byte{},
		failPart: map[int32]error{},
	}
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("up-%d", f.seq)
	f.uploads[id] = &fakeUpload{key: aws.ToString(in.Key), contentType: aws.ToString(in.ContentType), parts: map[int32][]byte{}}
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls++
	n := aws.ToInt32(in.PartNumber)
	if err, ok := f.failPart[n]; ok {
		delete(f.failPart, n)
		return nil, err
	}
	up, ok := f.uploads[aws.ToString(in.UploadId)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchUpload"}
	}
	up.parts[n] = body
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("etag-%d", n))}, nil
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := aws.ToString(in.UploadId)
	up, ok := f.uploads[id]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchUpload"}
	}
	var data []byte
	for _, p := range in.MultipartUpload.Parts {
		data = append(data, up.parts[aws.ToInt32(p.PartNumber)]...)
	}
	f.objects[up.key] = data
	delete(f.uploads, id)
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := aws.ToString(in.UploadId)
	delete(f.uploads, id)
	f.aborted = append(f.aborted, id)
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) ListParts(ctx context.Context, in *s3.ListPartsInput, _ ...func(*s3.Options)) (*s3.ListPartsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.uploads[aws.ToString(in.UploadId)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchUpload"}
	}
	nums := make([]int, 0, len(up.parts))
	for n := range up.parts {
		nums = append(nums, int(n))
	}
	sort.Ints(nums)
	out := &s3.ListPartsOutput{IsTruncated: aws.Bool(false)}
	for _, n := range nums {
		b := up.parts[int32(n)]
		out.Parts = append(out.Parts, types.Part{
			PartNumber: aws.Int32(int32(n)),
			ETag:       aws.String(fmt.Sprintf("etag-%d", n)),
			Size:       aws.Int64(int64(len(b))),
		})
	}
	return out, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) object(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	return b, ok
}

func (f *fakeS3) abortedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.aborted...)
}
