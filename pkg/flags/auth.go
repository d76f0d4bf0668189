package flags

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// AuthFlags configure the signing of access tokens.
type AuthFlags struct {
	SigningKey     string
	SigningKeyFile string
	TokenTTL       time.Duration
}

func NewAuthFlags() *AuthFlags {
	return &AuthFlags{
		SigningKey: os.Getenv("RP_JWT_SIGNING_KEY"),
		TokenTTL:   24 * time.Hour,
	}
}

func (f *AuthFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.SigningKeyFile, "jwt-signing-key-file", f.SigningKeyFile, "File holding the key access tokens are signed with")
	fs.DurationVar(&f.TokenTTL, "token-ttl", f.TokenTTL, "Lifetime of issued access tokens")
}

// GetSigningKey prefers the key file over the RP_JWT_SIGNING_KEY environment variable.
func (f *AuthFlags) GetSigningKey() ([]byte, error) {
	if f.SigningKeyFile != "" {
		key, err := os.ReadFile(f.SigningKeyFile)
		if err != nil {
			return nil, errors.WithMessage(err, "reading signing key")
		}
		return key, nil
	}
	if f.SigningKey == "" {
		return nil, errors.New("no signing key: set --jwt-signing-key-file or RP_JWT_SIGNING_KEY")
	}
	return []byte(f.SigningKey), nil
}
