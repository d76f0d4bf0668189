package api

type CreateUserRQ struct {
	Login          string      `json:"login"`
	Password       string      `json:"password"`
	FullName       string      `json:"fullName"`
	Email          string      `json:"email"`
	AccountRole    UserRole    `json:"accountRole"`
	ProjectRole    ProjectRole `json:"projectRole,omitempty"`
	DefaultProject string      `json:"defaultProject,omitempty"`
}

type CreateUserRS struct {
	ID    uint   `json:"id"`
	Login string `json:"login"`
}

type EditUserRQ struct {
	Email    string   `json:"email,omitempty"`
	FullName string   `json:"fullName,omitempty"`
	Role     UserRole `json:"role,omitempty"`
}

type ChangePasswordRQ struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type UserResource struct {
	ID               uint                       `json:"id"`
	UserID           string                     `json:"userId"`
	Email            string                     `json:"email"`
	FullName         string                     `json:"fullName"`
	AccountType      UserType                   `json:"accountType"`
	UserRole         UserRole                   `json:"userRole"`
	Active           bool                       `json:"active"`
	AssignedProjects map[string]AssignedProject `json:"assignedProjects"`
}

type AssignedProject struct {
	ProjectRole ProjectRole `json:"projectRole"`
	EntryType   string      `json:"entryType"`
}

type ApiKeyRQ struct {
	Name string `json:"name"`
}

type ApiKeyRS struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	UserID    uint   `json:"userId"`
	CreatedAt Time   `json:"createdAt"`
	LastUsed  *Time  `json:"lastUsedAt,omitempty"`
	// APIKey is only populated in the create response.
	APIKey string `json:"apiKey,omitempty"`
}

type ApiKeysRS struct {
	Items []ApiKeyRS `json:"items"`
}

type LoginRQ struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// TokenRS is an issued access token.
type TokenRS struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
