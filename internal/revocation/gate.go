// Package revocation mantiene la lista de pares (cliente, principal) bloqueados.
// Un par presente hace fallar cualquier verificación de token de ese principal
// en ese cliente, aunque el token sea válido.
package revocation

import (
	"context"
	"strconv"
	"strings"

	"github.com/dropDatabas3/tokenauthority/internal/audit"
	"github.com/dropDatabas3/tokenauthority/internal/cache"
	apperr "github.com/dropDatabas3/tokenauthority/internal/errors"
	"github.com/dropDatabas3/tokenauthority/internal/metrics"
	"github.com/dropDatabas3/tokenauthority/internal/observability/logger"
)

const keyPrefix = "revoked:"

type Gate struct {
	cache   cache.Client
	metrics *metrics.Metrics
}

func New(c cache.Client, m *metrics.Metrics) *Gate {
	return &Gate{cache: c, metrics: m}
}

// key lleva el largo del client id para que ("a:b","c") y ("a","b:c") no colisionen.
func key(clientID, principal string) string {
	return keyPrefix + strconv.Itoa(len(clientID)) + ":" + clientID + ":" + principal
}

func blank(clientID, principal string) bool {
	return strings.TrimSpace(clientID) == "" || strings.TrimSpace(principal) == ""
}

// Check reporta si el par está revocado. Entradas en blanco => false.
func (g *Gate) Check(ctx context.Context, clientID, principal string) (bool, error) {
	if blank(clientID, principal) {
		return false, nil
	}
	ok, err := g.cache.Exists(ctx, key(clientID, principal))
	if err != nil {
		g.fail(ctx, "check", clientID, principal, err)
		return false, apperr.Wrap(err, apperr.KindInternal, "revocation lookup")
	}
	g.metrics.Revocation("check", result(ok))
	return ok, nil
}

// Add revoca el par. Reporta true si no estaba revocado.
func (g *Gate) Add(ctx context.Context, clientID, principal string) (bool, error) {
	if blank(clientID, principal) {
		return false, nil
	}
	added, err := g.cache.Add(ctx, key(clientID, principal), "1", 0)
	if err != nil {
		g.fail(ctx, "add", clientID, principal, err)
		return false, apperr.Wrap(err, apperr.KindInternal, "revocation add")
	}
	g.metrics.Revocation("add", result(added))
	if added {
		audit.Log(ctx, audit.EventRevocationAdd, logger.ClientID(clientID), logger.Username(principal))
	}
	return added, nil
}

// Remove levanta la revocación. Reporta true si existía.
func (g *Gate) Remove(ctx context.Context, clientID, principal string) (bool, error) {
	if blank(clientID, principal) {
		return false, nil
	}
	existed, err := g.cache.Delete(ctx, key(clientID, principal))
	if err != nil {
		g.fail(ctx, "remove", clientID, principal, err)
		return false, apperr.Wrap(err, apperr.KindInternal, "revocation remove")
	}
	g.metrics.Revocation("remove", result(existed))
	if existed {
		audit.Log(ctx, audit.EventRevocationRemove, logger.ClientID(clientID), logger.Username(principal))
	}
	return existed, nil
}

func (g *Gate) fail(ctx context.Context, op, clientID, principal string, err error) {
	g.metrics.Revocation(op, "error")
	logger.From(ctx).Error("revocation store failed",
		logger.Component("revocation"), logger.Op(op),
		logger.ClientID(clientID), logger.Username(principal), logger.Err(err))
}

func result(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
