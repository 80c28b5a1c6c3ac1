package services

import (
	"context"
	"strings"

	"github.com/intakedesk/apiserver/internal/apperrors"
	"github.com/intakedesk/apiserver/internal/policy"
	"github.com/intakedesk/apiserver/internal/store"
	"github.com/intakedesk/apiserver/types"
)

// StatusAll disables the status filter of an admin listing.
const StatusAll = "all"

// Dashboard is the admin listing together with per-status counts.
type Dashboard struct {
	Items []types.Profile      `json:"items"`
	Stats types.DirectoryStats `json:"stats"`
}

// DirectoryService lists profiles for users and admins.
type DirectoryService struct {
	profiles ProfileRepository
}

func NewDirectoryService(profiles ProfileRepository) *DirectoryService {
	return &DirectoryService{profiles: profiles}
}

// ListForUser returns the caller's own profiles, newest first.
func (s *DirectoryService) ListForUser(ctx context.Context, caller policy.Caller) ([]types.Profile, error) {
	items, err := s.profiles.List(ctx, store.ProfileFilter{OwnerID: caller.UserID})
	if err != nil {
		return nil, storeErr(err, "profiles")
	}
	return items, nil
}

// ParseStatusFilter turns a query value into a status. Empty and "all"
// mean no filter.
func ParseStatusFilter(raw string) (types.Status, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" || raw == StatusAll {
		return "", nil
	}
	status := types.Status(raw)
	if !status.Valid() {
		return "", apperrors.Validation("status", "status must be all, draft, pending, verified or rejected")
	}
	return status, nil
}

// ListForAdmin returns every profile matching statusFilter, newest first,
// and the current counts. Counts are recomputed on each call.
func (s *DirectoryService) ListForAdmin(ctx context.Context, caller policy.Caller, statusFilter string) (Dashboard, error) {
	if err := policy.AuthorizeAdmin(caller); err != nil {
		return Dashboard{}, err
	}
	status, err := ParseStatusFilter(statusFilter)
	if err != nil {
		return Dashboard{}, err
	}

	items, err := s.profiles.List(ctx, store.ProfileFilter{Status: status})
	if err != nil {
		return Dashboard{}, storeErr(err, "profiles")
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{Items: items, Stats: stats}, nil
}

// Stats groups all profiles by status.
func (s *DirectoryService) Stats(ctx context.Context) (types.DirectoryStats, error) {
	counts, err := s.profiles.CountByStatus(ctx)
	if err != nil {
		return types.DirectoryStats{}, storeErr(err, "profiles")
	}
	var stats types.DirectoryStats
	for status, n := range counts {
		stats.Add(status, n)
	}
	return stats, nil
}
