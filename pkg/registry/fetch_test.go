package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/nimburion/adapter-registry/pkg/store"
)

func TestFetchFile(t *testing.T) {
	objects := newMockObjectStore(map[string]string{testKey: `{"name":"modbus"}`})
	svc, _ := newTestService(objects, newMemoryIndex())

	res, err := svc.FetchFile(context.Background(), testBucket, &FetchFileRequest{FilePath: testKey})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AdapterFileData == nil || *res.AdapterFileData != `{"name":"modbus"}` {
		t.Fatalf("unexpected data: %+v", res)
	}
}

func TestFetchFile_EmptyObject(t *testing.T) {
	objects := newMockObjectStore(nil)
	objects.getObjectFn = func(context.Context, string, string) store.Result[*string] {
		return store.OK[*string](nil)
	}
	svc, _ := newTestService(objects, newMemoryIndex())

	res, err := svc.FetchFile(context.Background(), testBucket, &FetchFileRequest{FilePath: testKey})
	if err != nil || res.AdapterFileData != nil {
		t.Fatalf("expected nil data, got %+v %v", res, err)
	}
}

func TestFetchFile_Errors(t *testing.T) {
	svc, _ := newTestService(newMockObjectStore(nil), newMemoryIndex())

	if _, err := svc.FetchFile(context.Background(), testBucket, nil); PublicMessage(err) != "Request body is missing." {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.FetchFile(context.Background(), testBucket, &FetchFileRequest{}); PublicMessage(err) != "Missing filePath field in request body." {
		t.Fatalf("unexpected error: %v", err)
	}

	objects := newMockObjectStore(nil)
	objects.getObjectFn = func(context.Context, string, string) store.Result[*string] {
		return store.Fail[*string](errors.New("NoSuchKey"))
	}
	svc, _ = newTestService(objects, newMemoryIndex())
	if _, err := svc.FetchFile(context.Background(), testBucket, &FetchFileRequest{FilePath: "missing"}); KindOf(err) != KindInternalServerError {
		t.Fatalf("expected internal error, got %v", err)
	}
}
