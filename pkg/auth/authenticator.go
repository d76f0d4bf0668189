package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/rperrors"
)

const (
	userNameClaim = "user_name"
	bearerPrefix  = "bearer "
	apiKeyBytes   = 48
)

// Authenticator resolves bearer tokens, either signed JWTs or api keys, into users.
type Authenticator struct {
	dbc        *db.DB
	signingKey []byte
	now        func() time.Time
}

func NewAuthenticator(dbc *db.DB, signingKey []byte) *Authenticator {
	return &Authenticator{
		dbc:        dbc,
		signingKey: signingKey,
		now:        time.Now,
	}
}

// Authenticate reads the Authorization header of the request. An access_token query
// parameter is accepted too, for attachment downloads from the browser.
func (a *Authenticator) Authenticate(req *http.Request) (*ReportPortalUser, error) {
	token := bearerToken(req)
	if token == "" {
		return nil, rperrors.New(rperrors.Unauthorized, "Missing bearer token.")
	}

	var user *models.User
	var err error
	if looksLikeJWT(token) {
		user, err = a.userFromJWT(token)
	} else {
		user, err = a.userFromAPIKey(token)
	}
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active {
		return nil, rperrors.New(rperrors.Unauthorized, "User is not active.")
	}
	return NewReportPortalUser(user), nil
}

func bearerToken(req *http.Request) string {
	header := req.Header.Get("Authorization")
	if len(header) > len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(header[len(bearerPrefix):])
	}
	return req.URL.Query().Get("access_token")
}

func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

func (a *Authenticator) userFromJWT(token string) (*models.User, error) {
	login, err := a.ParseToken(token)
	if err != nil {
		return nil, rperrors.New(rperrors.Unauthorized, err.Error())
	}
	return query.UserByLogin(a.dbc.DB, login)
}

func (a *Authenticator) userFromAPIKey(token string) (*models.User, error) {
	key, err := query.ApiKeyByHash(a.dbc.DB, HashAPIKey(token))
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, rperrors.New(rperrors.Unauthorized, "Invalid api key.")
	}

	now := a.now()
	if key.LastUsedAt == nil || now.Sub(*key.LastUsedAt) > 24*time.Hour {
		if res := a.dbc.DB.Model(key).Update("last_used_at", now); res.Error != nil {
			log.WithError(res.Error).Warn("could not update api key usage time")
		}
	}
	return query.UserByID(a.dbc.DB, key.UserID)
}

// IssueToken signs a JWT for the login that expires after ttl.
func (a *Authenticator) IssueToken(login string, ttl time.Duration) (string, error) {
	if len(a.signingKey) == 0 {
		return "", errors.New("no signing key configured")
	}
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userNameClaim: login,
		"iat":         now.Unix(),
		"exp":         now.Add(ttl).Unix(),
	})
	return token.SignedString(a.signingKey)
}

// ParseToken validates the signature and expiry of a JWT and returns its user name claim.
func (a *Authenticator) ParseToken(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return a.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return "", errors.WithMessage(err, "invalid token")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	login, _ := claims[userNameClaim].(string)
	if login == "" {
		return "", errors.New("token has no user name")
	}
	return login, nil
}

// ProjectDetailsFor returns the caller's membership in the named project. Administrators
// are granted project manager rights on projects they are not assigned to.
func ProjectDetailsFor(dbc *db.DB, user *ReportPortalUser, projectName string) (*ProjectDetails, error) {
	projectName = strings.ToLower(projectName)
	if details, ok := user.Projects[projectName]; ok {
		return &details, nil
	}

	project, err := query.ProjectByName(dbc, projectName)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, rperrors.New(rperrors.ProjectNotFound, projectName)
	}
	if !user.IsAdmin() {
		return nil, rperrors.New(rperrors.AccessDenied, "Please check the list of your available projects.")
	}
	return &ProjectDetails{ID: project.ID, Name: project.Name, Role: apitype.ProjectRoleProjectManager}, nil
}

// GenerateAPIKey returns a new key of the form <name>_<secret> and the hash to store.
func GenerateAPIKey(name string) (string, string, error) {
	secret := make([]byte, apiKeyBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}
	key := strings.ReplaceAll(name, " ", "-") + "_" + base64.RawURLEncoding.EncodeToString(secret)
	return key, HashAPIKey(key), nil
}

func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// LoginUser records a successful login.
func LoginUser(dbc *gorm.DB, user *models.User) {
	now := time.Now()
	if res := dbc.Model(user).Update("last_login", now); res.Error != nil {
		log.WithError(res.Error).WithField("login", user.Login).Warn("could not record login")
	}
}
