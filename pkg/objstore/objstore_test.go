package objstore_test

import (
	"context"
	"errors"
	"testing"

	"afc-coordinator/pkg/objstore"
)

func TestFilesystemStore_WriteAndRead(t *testing.T) {
	store, err := objstore.NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemStore() error = %v", err)
	}

	ctx := context.Background()
	if err := store.Write(ctx, "task-1", "request.json", []byte(`{"req":true}`)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := store.Read(ctx, "task-1", "request.json")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != `{"req":true}` {
		t.Errorf("unexpected artifact contents: %s", got)
	}
}

func TestFilesystemStore_ReadMissingReturnsError(t *testing.T) {
	store, err := objstore.NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemStore() error = %v", err)
	}

	_, err = store.Read(context.Background(), "missing-task", "request.json")
	if err == nil {
		t.Fatal("expected error reading missing artifact")
	}
}

type failingStore struct{}

func (failingStore) Write(ctx context.Context, taskID, name string, data []byte) error {
	return errors.New("boom")
}
func (failingStore) Read(ctx context.Context, taskID, name string) ([]byte, error) {
	return nil, errors.New("boom")
}
func (failingStore) Coordinates() (string, string, int) {
	return "local", "", 0
}

func TestWriteBestEffort_SwallowsErrors(t *testing.T) {
	objstore.WriteBestEffort(context.Background(), failingStore{}, "task-1", "x.json", nil)
	objstore.WriteBestEffort(context.Background(), nil, "task-1", "x.json", nil)
}
