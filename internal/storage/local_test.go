package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestLocalStorage_PutGetRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	ctx := context.Background()
	content := "sale_id,customer_id\n100,1\n"

	if err := store.Put(ctx, "fashion-store", "sales.csv", strings.NewReader(content)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	body, err := store.Get(ctx, "fashion-store", "sales.csv")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer body.Close()

	got, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != content {
		t.Errorf("content mismatch: got %q, want %q", got, content)
	}
}

func TestLocalStorage_GetMissing(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	_, err = store.Get(context.Background(), "fashion-store", "nope.csv")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("got %v, want ErrObjectNotFound", err)
	}
}

func TestLocalStorage_Exists(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	ctx := context.Background()

	exists, err := store.Exists(ctx, "fashion-store", "sales.csv")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("object should not exist yet")
	}

	if err := store.Put(ctx, "fashion-store", "sales.csv", strings.NewReader("x")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	exists, err = store.Exists(ctx, "fashion-store", "sales.csv")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("object should exist after Put")
	}
}

func TestLocalStorage_NestedKey(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Put(ctx, "fashion-store", "feeds/2025/sales.csv", strings.NewReader("data")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	body, err := store.Get(ctx, "fashion-store", "feeds/2025/sales.csv")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	body.Close()
}

func TestLocalStorage_CanceledContext(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Get(ctx, "fashion-store", "sales.csv"); err == nil {
		t.Error("expected error for canceled context")
	}
}
