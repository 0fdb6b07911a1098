// Package logger expone un logger Zap singleton con scoping por contexto.
//
// Inicialización (una vez, en el CLI):
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
// En servicios:
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("Login"))
//	log.Info("tokens issued", logger.ClientID(id))
//
// Nunca loguear secretos ni tokens completos: usar TokenHint.
package logger
