// Package handlers define las capacidades enchufables por cliente: quién
// valida credenciales (Authenticator) y cómo se leen los claims de un token
// ya validado (Authorizer). El Registry mapea el tag del cliente a su par.
package handlers

import (
	"context"
	"fmt"
	"sync"
)

// Principal es el usuario autenticado tal como lo entiende el authenticator.
type Principal struct {
	Username    string
	Authorities []string
	Details     map[string]any
}

// RawClaims son los claims crudos que el authenticator quiere en cada token.
// Access y Refresh son independientes: no se asume que sean iguales.
type RawClaims struct {
	Access         map[string]any
	Refresh        map[string]any
	AdditionalInfo map[string]any
}

type Authenticator interface {
	// Authenticate verifica credenciales. Errores esperados: Unauthorized,
	// UsernameNotFound, AccountDisabled.
	Authenticate(ctx context.Context, username, password string) (Principal, error)
	// LoadPrincipal recarga al usuario sin password (refresh).
	LoadPrincipal(ctx context.Context, username string) (Principal, error)
	RawClaims(ctx context.Context, p Principal) (RawClaims, error)
}

type Authorizer interface {
	ExtractUsername(claims map[string]any) (string, bool)
	ExtractAuthorities(claims map[string]any) []string
	ExtractAdditional(claims map[string]any) map[string]any
}

// Handler agrupa las dos capacidades de un tag.
type Handler struct {
	Authenticator Authenticator
	Authorizer    Authorizer
}

// DefaultTag se usa cuando el tag del cliente no tiene handler propio.
const DefaultTag = "default"

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register asocia tag -> handler. Un Authorizer nil usa ClaimsAuthorizer.
func (r *Registry) Register(tag string, h Handler) error {
	if tag == "" {
		return fmt.Errorf("handlers: empty tag")
	}
	if h.Authenticator == nil {
		return fmt.Errorf("handlers: %s: authenticator required", tag)
	}
	if h.Authorizer == nil {
		h.Authorizer = ClaimsAuthorizer{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[tag] = h
	return nil
}

// Resolve busca el handler del tag y, si no hay, el de DefaultTag.
func (r *Registry) Resolve(tag string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[tag]; ok {
		return h, true
	}
	h, ok := r.handlers[DefaultTag]
	return h, ok
}
