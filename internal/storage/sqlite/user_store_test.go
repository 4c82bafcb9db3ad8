package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/mycotrack/myco/internal/storage"
	"github.com/mycotrack/myco/pkg/types"
)

func TestUserStore_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := &types.User{Username: "alice", PasswordHash: "$2a$10$hash", IsActive: true}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.ID == 0 {
		t.Fatal("Expected user id to be assigned")
	}

	byID, err := store.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if byID.Username != "alice" || byID.PasswordHash != "$2a$10$hash" {
		t.Errorf("User mismatch: %+v", byID)
	}

	byName, err := store.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername failed: %v", err)
	}
	if byName.ID != user.ID {
		t.Errorf("Expected same user, got id %d", byName.ID)
	}
}

func TestUserStore_DuplicateUsername(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &types.User{Username: "alice", PasswordHash: "x", IsActive: true}
	if err := store.CreateUser(ctx, first); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	dup := &types.User{Username: "alice", PasswordHash: "y", IsActive: true}
	if err := store.CreateUser(ctx, dup); !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
}

func TestUserStore_Validation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cases := []*types.User{
		{Username: "", PasswordHash: "x"},
		{Username: "ab", PasswordHash: "x"},
		{Username: "alice", PasswordHash: ""},
	}
	for _, user := range cases {
		if err := store.CreateUser(ctx, user); !errors.Is(err, storage.ErrInvalidInput) {
			t.Errorf("%q: expected ErrInvalidInput, got %v", user.Username, err)
		}
	}
}

func TestUserStore_Miss(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetUser(ctx, 42); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetUserByUsername(ctx, "nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
