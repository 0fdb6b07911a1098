package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dropDatabas3/tokenauthority/internal/authreq"
	apperr "github.com/dropDatabas3/tokenauthority/internal/errors"
	"github.com/dropDatabas3/tokenauthority/internal/observability/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const maxLine = 1 << 20

// opRequest es una operación por línea (JSON) en modo serve.
type opRequest struct {
	ID        string `json:"id,omitempty"`
	Op        string `json:"op"`
	Client    string `json:"client,omitempty"`
	User      string `json:"user,omitempty"`
	Password  string `json:"password,omitempty"`
	Token     string `json:"token,omitempty"`
	Refresh   bool   `json:"refresh,omitempty"`
	Principal string `json:"principal,omitempty"`
	Challenge string `json:"challenge,omitempty"`
	Method    string `json:"method,omitempty"`
	Code      string `json:"code,omitempty"`
	Verifier  string `json:"verifier,omitempty"`
}

type opError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type opResponse struct {
	ID     string   `json:"id,omitempty"`
	OK     bool     `json:"ok"`
	Result any      `json:"result,omitempty"`
	Error  *opError `json:"error,omitempty"`
}

func serveCmd(cfg cfgFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Procesa operaciones JSON por stdin y sirve /metrics y /healthz",
		Long: "Lee una operación JSON por línea (login, refresh, check, revoke.add|remove|check,\n" +
			"authreq.create|consume) y escribe una respuesta por línea. El estado en memoria\n" +
			"(revocaciones, authorization requests) vive mientras corre el proceso.\n" +
			"Termina con EOF en stdin o SIGINT/SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			a, err := newApp(ctx, cfg(), reg)
			if err != nil {
				return err
			}
			defer a.close()

			log := logger.From(ctx).With(logger.Component("serve"))
			srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: a.opsHandler(reg), ReadHeaderTimeout: 5 * time.Second}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			log.Info("metrics listening", zap.String("addr", a.cfg.Metrics.Addr))

			pipeDone := make(chan error, 1)
			go func() { pipeDone <- a.runOps(ctx, cmd.InOrStdin(), cmd.OutOrStdout()) }()

			var runErr error
			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					runErr = err
				}
			case err := <-pipeDone:
				runErr = err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
				runErr = err
			}
			return runErr
		},
	}
}

// opsHandler expone /metrics del registry del proceso y /healthz.
func (a *app) opsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.ping(r.Context()); err != nil {
			logger.From(r.Context()).Warn("health check failed", logger.Err(err))
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "ok")
	})
	return mux
}

// runOps procesa operaciones hasta EOF o cancelación. Una línea inválida
// produce una respuesta de error, no corta el loop.
func (a *app) runOps(ctx context.Context, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	enc := json.NewEncoder(out)

	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var req opRequest
		var resp opResponse
		if err := json.Unmarshal(line, &req); err != nil {
			resp = failure("", apperr.Wrap(err, apperr.KindIllegalArgument, "malformed request"))
		} else {
			resp = a.dispatch(ctx, req)
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return sc.Err()
}

func (a *app) dispatch(ctx context.Context, req opRequest) opResponse {
	var (
		res any
		err error
	)
	switch req.Op {
	case "login":
		res, err = a.authn.Login(ctx, req.Client, req.User, req.Password)
	case "refresh":
		res, err = a.authn.Refresh(ctx, req.Client, req.Token)
	case "check":
		res, err = a.authz.CheckToken(ctx, req.Client, req.Token, !req.Refresh)
	case "revoke.add":
		res, err = a.gate.Add(ctx, req.Client, req.Principal)
	case "revoke.remove":
		res, err = a.gate.Remove(ctx, req.Client, req.Principal)
	case "revoke.check":
		res, err = a.gate.Check(ctx, req.Client, req.Principal)
	case "authreq.create":
		method := req.Method
		if method == "" {
			method = string(authreq.MethodSHA256)
		}
		res, err = a.authreq.Create(ctx, req.Client, req.Challenge, method)
	case "authreq.consume":
		var r *authreq.AuthorizationRequest
		r, err = a.authreq.Consume(ctx, req.Code)
		if err == nil && req.Verifier != "" {
			err = authreq.VerifyChallenge(r, req.Verifier)
		}
		res = r
	default:
		err = apperr.Newf(apperr.KindIllegalArgument, "unknown op %q", req.Op)
	}
	if err != nil {
		return failure(req.ID, err)
	}
	return opResponse{ID: req.ID, OK: true, Result: res}
}

// failure sólo expone el mensaje de errores tipados; el resto es "internal error".
func failure(id string, err error) opResponse {
	e := &apperr.Error{Kind: apperr.KindInternal, Message: "internal error"}
	var typed *apperr.Error
	if errors.As(err, &typed) {
		e = typed
	}
	return opResponse{ID: id, Error: &opError{Kind: string(e.Kind), Message: e.Message, Status: e.HTTPStatus()}}
}
