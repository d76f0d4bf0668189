// Package auth resolves the caller of an API request and checks what the caller may do
// within a project.
package auth

import (
	"context"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/rperrors"
)

// ProjectDetails is the caller's membership in a project.
type ProjectDetails struct {
	ID   uint
	Name string
	Role apitype.ProjectRole
}

// ReportPortalUser is the authenticated caller.
type ReportPortalUser struct {
	ID       uint
	Login    string
	Email    string
	Role     apitype.UserRole
	Projects map[string]ProjectDetails
}

func (u *ReportPortalUser) IsAdmin() bool {
	return u != nil && u.Role == apitype.UserRoleAdministrator
}

// NewReportPortalUser builds the caller from a user row with memberships loaded.
func NewReportPortalUser(user *models.User) *ReportPortalUser {
	rpUser := &ReportPortalUser{
		ID:       user.ID,
		Login:    user.Login,
		Email:    user.Email,
		Role:     apitype.UserRole(user.Role),
		Projects: make(map[string]ProjectDetails, len(user.Projects)),
	}
	for _, pu := range user.Projects {
		rpUser.Projects[pu.Project.Name] = ProjectDetails{
			ID:   pu.ProjectID,
			Name: pu.Project.Name,
			Role: apitype.ProjectRole(pu.Role),
		}
	}
	return rpUser
}

// RequireAdmin fails unless the caller is an administrator.
func RequireAdmin(user *ReportPortalUser) error {
	return rperrors.Expect(user.IsAdmin(), rperrors.AccessDenied, "Only administrators can perform this operation.")
}

// RequireProjectRole fails unless the caller's role in the project is at least min.
// Administrators pass regardless of their membership.
func RequireProjectRole(user *ReportPortalUser, details *ProjectDetails, min apitype.ProjectRole) error {
	if user.IsAdmin() {
		return nil
	}
	return rperrors.Expect(details != nil && details.Role.SameOrHigherThan(min), rperrors.AccessDenied,
		"Project role '"+string(min)+"' or higher is required.")
}

type contextKey struct{}

// WithUser stores the caller in the context.
func WithUser(ctx context.Context, user *ReportPortalUser) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the caller stored by WithUser, or nil.
func UserFromContext(ctx context.Context) *ReportPortalUser {
	user, _ := ctx.Value(contextKey{}).(*ReportPortalUser)
	return user
}
