package artifact

import (
	"context"
	"errors"
	"testing"
)

func TestStoreAndRetrieveRoundTrip(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	uri, err := s.Store(ctx, "wf-1", "transcripts", []byte("hello world"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := s.Retrieve(ctx, uri)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
}

func TestStoreIsContentAddressed(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	uri1, err := s.Store(ctx, "wf-1", "cat", []byte("same content"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	uri2, err := s.Store(ctx, "wf-2", "cat", []byte("same content"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if uri1 != uri2 {
		t.Fatalf("identical content in the same category should produce the same uri: %s != %s", uri1, uri2)
	}
}

func TestRetrieveMissingReturnsNotFound(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	_, err = s.Retrieve(context.Background(), Uri("artifact://none/deadbeef"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	uri, err := s.Store(ctx, "wf-1", "cat", []byte("payload"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	if err := s.Delete(ctx, uri); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := s.Delete(ctx, uri); err != nil {
		t.Fatalf("second delete on already-deleted uri should not error: %v", err)
	}

	_, err = s.Retrieve(ctx, uri)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDeleteByWorkflowRemovesOnlyOwnedArtifacts(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	uriA, err := s.Store(ctx, "wf-a", "cat", []byte("a's artifact"))
	if err != nil {
		t.Fatalf("store a: %v", err)
	}
	uriB, err := s.Store(ctx, "wf-b", "cat", []byte("b's artifact"))
	if err != nil {
		t.Fatalf("store b: %v", err)
	}

	if err := s.DeleteByWorkflow(ctx, "wf-a"); err != nil {
		t.Fatalf("delete by workflow: %v", err)
	}

	if _, err := s.Retrieve(ctx, uriA); !errors.Is(err, ErrNotFound) {
		t.Fatalf("wf-a's artifact should be gone, got err=%v", err)
	}
	if _, err := s.Retrieve(ctx, uriB); err != nil {
		t.Fatalf("wf-b's artifact should survive, got err=%v", err)
	}
}
