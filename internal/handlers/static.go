package handlers

import (
	"context"
	"fmt"
	"os"

	apperr "github.com/dropDatabas3/tokenauthority/internal/errors"
	"github.com/dropDatabas3/tokenauthority/internal/observability/logger"
	"github.com/dropDatabas3/tokenauthority/internal/security/password"
	"gopkg.in/yaml.v3"
)

// User es una entrada del archivo de usuarios.
type User struct {
	Username       string         `yaml:"username"`
	PasswordHash   string         `yaml:"password_hash"` // argon2id PHC
	Disabled       bool           `yaml:"disabled"`
	Authorities    []string       `yaml:"authorities"`
	AdditionalInfo map[string]any `yaml:"additional_info"`
}

type usersFile struct {
	Users []User `yaml:"users"`
}

// LoadUsers lee un YAML con la forma {users: [...]}.
func LoadUsers(path string) ([]User, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	var f usersFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}
	return f.Users, nil
}

// StaticAuthenticator autentica contra una lista fija de usuarios.
type StaticAuthenticator struct {
	users map[string]User
}

func NewStaticAuthenticator(users []User) (*StaticAuthenticator, error) {
	m := make(map[string]User, len(users))
	for _, u := range users {
		if u.Username == "" {
			return nil, fmt.Errorf("static authenticator: user without username")
		}
		if _, dup := m[u.Username]; dup {
			return nil, fmt.Errorf("static authenticator: duplicate user %q", u.Username)
		}
		m[u.Username] = u
	}
	return &StaticAuthenticator{users: m}, nil
}

func (s *StaticAuthenticator) Authenticate(ctx context.Context, username, plain string) (Principal, error) {
	log := logger.From(ctx).With(logger.Component("static_authenticator"), logger.Username(username))

	u, ok := s.users[username]
	if !ok {
		return Principal{}, apperr.New(apperr.KindUsernameNotFound, "unknown user")
	}
	match, err := password.Verify(plain, u.PasswordHash)
	if err != nil {
		log.Warn("unusable password hash", logger.Err(err))
		return Principal{}, apperr.New(apperr.KindUnauthorized, "bad credentials")
	}
	if !match {
		return Principal{}, apperr.New(apperr.KindUnauthorized, "bad credentials")
	}
	if u.Disabled {
		return Principal{}, apperr.New(apperr.KindAccountDisabled, "account disabled")
	}
	return principalOf(u), nil
}

func (s *StaticAuthenticator) LoadPrincipal(_ context.Context, username string) (Principal, error) {
	u, ok := s.users[username]
	if !ok {
		return Principal{}, apperr.New(apperr.KindUsernameNotFound, "unknown user")
	}
	if u.Disabled {
		return Principal{}, apperr.New(apperr.KindAccountDisabled, "account disabled")
	}
	return principalOf(u), nil
}

// RawClaims: access = sub+authorities; refresh además lleva additional_info.
func (s *StaticAuthenticator) RawClaims(_ context.Context, p Principal) (RawClaims, error) {
	auth := append([]string{}, p.Authorities...)
	access := map[string]any{
		ClaimSubject:     p.Username,
		ClaimAuthorities: auth,
	}
	refresh := map[string]any{
		ClaimSubject:     p.Username,
		ClaimAuthorities: auth,
	}
	if len(p.Details) > 0 {
		refresh[ClaimAdditionalInfo] = p.Details
	}
	return RawClaims{Access: access, Refresh: refresh, AdditionalInfo: p.Details}, nil
}

func principalOf(u User) Principal {
	details := make(map[string]any, len(u.AdditionalInfo))
	for k, v := range u.AdditionalInfo {
		details[k] = v
	}
	return Principal{
		Username:    u.Username,
		Authorities: append([]string{}, u.Authorities...),
		Details:     details,
	}
}
