// Package authreq guarda los authorization requests PKCE (code -> challenge).
//
// Cada code se puede consumir una sola vez: Consume es un get+delete atómico
// sobre el cache.Client (mutex en memory, GETDEL en redis).
package authreq

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/json"
	"hash"
	"strings"
	"time"

	"github.com/dropDatabas3/tokenauthority/internal/cache"
	apperr "github.com/dropDatabas3/tokenauthority/internal/errors"
	"github.com/dropDatabas3/tokenauthority/internal/metrics"
	"github.com/dropDatabas3/tokenauthority/internal/observability/logger"
	tokens "github.com/dropDatabas3/tokenauthority/internal/security/token"
)

const (
	keyPrefix  = "authreq:"
	codeBytes  = 32
	DefaultTTL = 10 * time.Minute
)

// Method es el algoritmo de hash del challenge.
type Method string

const (
	MethodSHA256 Method = "SHA-256"
	MethodSHA384 Method = "SHA-384"
	MethodSHA512 Method = "SHA-512"
)

// ParseMethod normaliza el nombre (acepta "S256" como alias de SHA-256).
func ParseMethod(s string) (Method, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SHA-256", "SHA256", "S256":
		return MethodSHA256, true
	case "SHA-384", "SHA384":
		return MethodSHA384, true
	case "SHA-512", "SHA512":
		return MethodSHA512, true
	}
	return "", false
}

func (m Method) hash() func() hash.Hash {
	switch m {
	case MethodSHA256:
		return sha256.New
	case MethodSHA384:
		return sha512.New384
	case MethodSHA512:
		return sha512.New
	}
	return nil
}

type AuthorizationRequest struct {
	Code            string    `json:"code"`
	ClientID        string    `json:"client_id"`
	Challenge       string    `json:"challenge"`
	ChallengeMethod Method    `json:"challenge_method"`
	CreatedAt       time.Time `json:"created_at"`
}

// Service es la API de authorization requests.
type Service interface {
	Create(ctx context.Context, clientID, challenge, method string) (*AuthorizationRequest, error)
	Consume(ctx context.Context, code string) (*AuthorizationRequest, error)
}

type Deps struct {
	Cache   cache.Client
	Metrics *metrics.Metrics
	TTL     time.Duration // 0 => DefaultTTL
	Now     func() time.Time
}

type service struct {
	deps Deps
}

func New(d Deps) Service {
	if d.TTL <= 0 {
		d.TTL = DefaultTTL
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &service{deps: d}
}

func (s *service) Create(ctx context.Context, clientID, challenge, method string) (*AuthorizationRequest, error) {
	log := logger.From(ctx).With(logger.Component("authreq"), logger.Op("Create"), logger.ClientID(clientID))

	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(challenge) == "" {
		s.deps.Metrics.AuthRequest("create", "rejected")
		return nil, apperr.New(apperr.KindIllegalArgument, "client id and challenge are required")
	}
	m, ok := ParseMethod(method)
	if !ok {
		s.deps.Metrics.AuthRequest("create", "rejected")
		return nil, apperr.Newf(apperr.KindIllegalArgument, "unsupported challenge method %q", method)
	}

	code, err := tokens.GenerateOpaqueToken(codeBytes)
	if err != nil {
		s.deps.Metrics.AuthRequest("create", "error")
		return nil, apperr.Wrap(err, apperr.KindNotSaved, "generate code")
	}
	req := &AuthorizationRequest{
		Code:            code,
		ClientID:        clientID,
		Challenge:       challenge,
		ChallengeMethod: m,
		CreatedAt:       s.deps.Now().UTC(),
	}
	raw, err := json.Marshal(req)
	if err != nil {
		s.deps.Metrics.AuthRequest("create", "error")
		return nil, apperr.Wrap(err, apperr.KindNotSaved, "encode request")
	}

	added, err := s.deps.Cache.Add(ctx, keyPrefix+code, string(raw), s.deps.TTL)
	if err != nil {
		log.Error("store authorization request", logger.Err(err))
		s.deps.Metrics.AuthRequest("create", "error")
		return nil, apperr.Wrap(err, apperr.KindNotSaved, "store authorization request")
	}
	if !added {
		// colisión de code: no pisamos un request ajeno
		log.Error("authorization code collision")
		s.deps.Metrics.AuthRequest("create", "error")
		return nil, apperr.New(apperr.KindNotSaved, "authorization code collision")
	}

	s.deps.Metrics.AuthRequest("create", "ok")
	log.Debug("authorization request created", logger.TokenHint(code))
	return req, nil
}

func (s *service) Consume(ctx context.Context, code string) (*AuthorizationRequest, error) {
	log := logger.From(ctx).With(logger.Component("authreq"), logger.Op("Consume"), logger.TokenHint(code))

	if code == "" {
		s.deps.Metrics.AuthRequest("consume", "not_found")
		return nil, apperr.ErrAuthorizationRequestNotFound
	}
	raw, err := s.deps.Cache.Take(ctx, keyPrefix+code)
	if err != nil {
		if cache.IsNotFound(err) {
			s.deps.Metrics.AuthRequest("consume", "not_found")
			return nil, apperr.ErrAuthorizationRequestNotFound
		}
		log.Error("take authorization request", logger.Err(err))
		s.deps.Metrics.AuthRequest("consume", "error")
		return nil, apperr.Wrap(err, apperr.KindInternal, "read authorization request")
	}

	var req AuthorizationRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		log.Error("decode authorization request", logger.Err(err))
		s.deps.Metrics.AuthRequest("consume", "error")
		return nil, apperr.Wrap(err, apperr.KindInternal, "decode authorization request")
	}
	s.deps.Metrics.AuthRequest("consume", "ok")
	return &req, nil
}

// VerifyChallenge compara base64url(hash(verifier)) con el challenge guardado.
func VerifyChallenge(req *AuthorizationRequest, verifier string) error {
	if req == nil || verifier == "" {
		return apperr.New(apperr.KindUnauthorized, "code verifier required")
	}
	h := req.ChallengeMethod.hash()
	if h == nil {
		return apperr.Newf(apperr.KindIllegalArgument, "unsupported challenge method %q", req.ChallengeMethod)
	}
	got := tokens.DigestBase64URL(h, verifier)
	if subtle.ConstantTimeCompare([]byte(got), []byte(req.Challenge)) != 1 {
		return apperr.New(apperr.KindUnauthorized, "code verifier mismatch")
	}
	return nil
}
