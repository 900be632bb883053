package repository

import (
	"errors"
	"testing"

	"github.com/lib/pq"
)

func TestRepos_ImplementInterfaces(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
	var _ PostRepository = (*PostgresPostRepo)(nil)
	var _ FollowRepository = (*PostgresFollowRepo)(nil)
}

func TestNewRepos_Initialize(t *testing.T) {
	if NewPostgresUserRepo(nil) == nil {
		t.Fatal("expected non-nil user repo")
	}
	if NewPostgresPostRepo(nil) == nil {
		t.Fatal("expected non-nil post repo")
	}
	if NewPostgresFollowRepo(nil) == nil {
		t.Fatal("expected non-nil follow repo")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pq.Error{Code: "23505"}) {
		t.Error("expected 23505 to be a unique violation")
	}
	if isUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Error("foreign-key violations are not unique violations")
	}
	if !isUniqueViolation(errors.New(`duplicate key value violates unique constraint "idx_users_username"`)) {
		t.Error("expected string fallback to match")
	}
	if isUniqueViolation(errors.New("connection refused")) {
		t.Error("unrelated errors must not match")
	}
}
