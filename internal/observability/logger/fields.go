package logger

import (
	"go.uber.org/zap"
)

// ---- campos de negocio ----

// ClientID identifica la aplicación registrada.
func ClientID(v string) zap.Field { return zap.String("client_id", v) }

// Username identifica al principal.
func Username(v string) zap.Field { return zap.String("username", v) }

// TokenID es el jti compartido por el par access/refresh.
func TokenID(v string) zap.Field { return zap.String("jti", v) }

// TokenKind: "access" | "refresh".
func TokenKind(isRefresh bool) zap.Field {
	if isRefresh {
		return zap.String("token_kind", "refresh")
	}
	return zap.String("token_kind", "access")
}

// TokenHint loguea sólo los últimos caracteres de un token.
func TokenHint(tok string) zap.Field {
	if len(tok) <= 6 {
		return zap.String("token_hint", "***")
	}
	return zap.String("token_hint", "***"+tok[len(tok)-6:])
}

// ---- campos de sistema ----

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Layer(v string) zap.Field     { return zap.String("layer", v) }
func Err(err error) zap.Field      { return zap.Error(err) }
func Driver(v string) zap.Field    { return zap.String("driver", v) }
