package publish

import (
	"fmt"
	"os"
)

// CredentialProvider supplies registry credentials at publish time. It is
// injected at Publisher construction so credentials never live in global state.
type CredentialProvider interface {
	Credentials() (username string, password string, err error)
}

// EnvCredentials reads credentials from named environment variables.
type EnvCredentials struct {
	UsernameVar string
	PasswordVar string
}

func (e *EnvCredentials) Credentials() (string, string, error) {
	username := os.Getenv(e.UsernameVar)
	password := os.Getenv(e.PasswordVar)
	if username == "" || password == "" {
		return "", "", fmt.Errorf("registry credentials not set (%s / %s)", e.UsernameVar, e.PasswordVar)
	}
	return username, password, nil
}

// StaticCredentials returns fixed credentials. Used in tests.
type StaticCredentials struct {
	Username string
	Password string
}

func (s *StaticCredentials) Credentials() (string, string, error) {
	return s.Username, s.Password, nil
}
