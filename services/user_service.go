package services

import (
	"context"
	"strings"

	"github.com/praptisiva25/WorkBud/apperror"
	"github.com/praptisiva25/WorkBud/db"
	"github.com/praptisiva25/WorkBud/models"
)

// UserDirectory mirrors identity provider profiles into the store.
type UserDirectory struct {
	store       db.Store
	searchLimit int
}

func NewUserDirectory(store db.Store, searchLimit int) *UserDirectory {
	return &UserDirectory{store: store, searchLimit: searchLimit}
}

// Sync creates or refreshes the profile for u.ID. Blank optional fields are
// stored as NULL.
func (d *UserDirectory) Sync(ctx context.Context, u models.User) error {
	u.ID = strings.TrimSpace(u.ID)
	if u.ID == "" {
		return apperror.New(apperror.InvalidArgument, "user id is required")
	}
	u.Email = blankToNil(u.Email)
	u.DisplayName = blankToNil(u.DisplayName)
	u.ImageURL = blankToNil(u.ImageURL)
	return d.store.UpsertUser(ctx, u)
}

// Search matches query case-insensitively against email and display name.
// An empty query matches nothing.
func (d *UserDirectory) Search(ctx context.Context, query string, limit int) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.User{}, nil
	}
	if limit <= 0 || limit > d.searchLimit {
		limit = d.searchLimit
	}
	return d.store.SearchUsers(ctx, query, limit)
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
