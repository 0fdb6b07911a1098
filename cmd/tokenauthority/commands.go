package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dropDatabas3/tokenauthority/internal/authreq"
	"github.com/dropDatabas3/tokenauthority/internal/config"
	"github.com/dropDatabas3/tokenauthority/internal/observability/logger"
	"github.com/dropDatabas3/tokenauthority/internal/security/secretbox"
	"github.com/dropDatabas3/tokenauthority/internal/store/core"
	"github.com/dropDatabas3/tokenauthority/internal/store/pg"
	migrations "github.com/dropDatabas3/tokenauthority/migrations/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type cfgFunc func() *config.Config

// withApp arma el grafo, corre fn y libera recursos.
func withApp(cmd *cobra.Command, cfg cfgFunc, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg(), prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

// requireSharedCache corta los comandos one-shot cuyo estado vive en el cache:
// con kind=memory se pierde al terminar el proceso. serve no tiene esta
// restricción.
func requireSharedCache(c *config.Config, command string) error {
	if c.Cache.Kind == "redis" {
		return nil
	}
	return fmt.Errorf("%s requiere cache.kind=redis (actual: %s): con cache en memoria el estado no sobrevive al proceso; usar 'serve' o configurar CACHE_KIND=redis", command, c.Cache.Kind)
}

func sealSecretCmd(cfg cfgFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "seal-secret <plain>",
		Short: "Sella un secreto de cliente con la master key ({cipher}...)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := cfg().Security.SecretBoxMasterKey
			if key == "" {
				return fmt.Errorf("falta %s", secretbox.EnvMasterKey)
			}
			box, err := secretbox.New(key)
			if err != nil {
				return err
			}
			sealed, err := box.Seal(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
}

func migrateCmd(cfg cfgFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones de Postgres del store de clientes",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			if c.Storage.Driver != "pg" {
				return fmt.Errorf("migrate requiere storage.driver=pg (actual: %s)", c.Storage.Driver)
			}
			ctx := cmd.Context()
			s, err := pg.New(ctx, c.Storage.DSN, pg.Tuning{MaxConns: 2})
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := pg.NewMigrator(migrations.FS, migrations.Dir).Run(ctx, s)
			if err != nil {
				return err
			}
			logger.From(ctx).Info("migrations done")
			return printJSON(cmd, res)
		},
	}
}

func clientsCmd(cfg cfgFunc) *cobra.Command {
	root := &cobra.Command{Use: "clients", Short: "Alta, baja y consulta de clientes"}

	var file string
	upsert := &cobra.Command{
		Use:   "upsert",
		Short: "Crea o actualiza un cliente desde un YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var c core.ClientConfig
			if err := yaml.Unmarshal(b, &c); err != nil {
				return err
			}
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				if err := a.writer.Upsert(ctx, &c); err != nil {
					return err
				}
				if err := a.registry.Put(ctx, &c); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), c.String())
				return nil
			})
		},
	}
	upsert.Flags().StringVar(&file, "file", "", "YAML con el ClientConfig")
	_ = upsert.MarkFlagRequired("file")

	var delID string
	del := &cobra.Command{
		Use:   "delete",
		Short: "Elimina un cliente",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				if err := a.writer.Delete(ctx, delID); err != nil {
					return err
				}
				return a.registry.Evict(ctx, delID)
			})
		},
	}
	del.Flags().StringVar(&delID, "client", "", "Client id")
	_ = del.MarkFlagRequired("client")

	var getID string
	get := &cobra.Command{
		Use:   "get",
		Short: "Muestra la config de un cliente (sin secretos)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				c, err := a.registry.Get(ctx, getID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), c.String())
				return nil
			})
		},
	}
	get.Flags().StringVar(&getID, "client", "", "Client id")
	_ = get.MarkFlagRequired("client")

	root.AddCommand(upsert, del, get)
	return root
}

func loginCmd(cfg cfgFunc) *cobra.Command {
	var client, user, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Autentica un usuario y emite el par access/refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("TOKENAUTHORITY_PASSWORD")
			}
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				b, err := a.authn.Login(ctx, client, user, password)
				if err != nil {
					return err
				}
				return printJSON(cmd, b)
			})
		},
	}
	cmd.Flags().StringVar(&client, "client", "", "Client id")
	cmd.Flags().StringVar(&user, "user", "", "Username")
	cmd.Flags().StringVar(&password, "password", "", "Password (o env TOKENAUTHORITY_PASSWORD)")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func refreshCmd(cfg cfgFunc) *cobra.Command {
	var client, token string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Canjea un refresh token por un par nuevo",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				b, err := a.authn.Refresh(ctx, client, token)
				if err != nil {
					return err
				}
				return printJSON(cmd, b)
			})
		},
	}
	cmd.Flags().StringVar(&client, "client", "", "Client id")
	cmd.Flags().StringVar(&token, "token", "", "Refresh token")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func checkCmd(cfg cfgFunc) *cobra.Command {
	var client, token string
	var refresh bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verifica un token y muestra al portador",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				res, err := a.authz.CheckToken(ctx, client, token, !refresh)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	cmd.Flags().StringVar(&client, "client", "", "Client id")
	cmd.Flags().StringVar(&token, "token", "", "Token")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "El token es un refresh token")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func revokeCmd(cfg cfgFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "revoke",
		Short: "Lista de revocación (cliente, principal)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			return requireSharedCache(cfg(), "revoke")
		},
	}

	op := func(use, short string, fn func(ctx context.Context, a *app, client, principal string) (bool, error)) *cobra.Command {
		var client, principal string
		c := &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
					ok, err := fn(ctx, a, client, principal)
					if err != nil {
						return err
					}
					return printJSON(cmd, map[string]bool{"result": ok})
				})
			},
		}
		c.Flags().StringVar(&client, "client", "", "Client id")
		c.Flags().StringVar(&principal, "principal", "", "Username")
		return c
	}

	root.AddCommand(
		op("add", "Revoca al principal en el cliente", func(ctx context.Context, a *app, c, p string) (bool, error) {
			return a.gate.Add(ctx, c, p)
		}),
		op("remove", "Levanta la revocación", func(ctx context.Context, a *app, c, p string) (bool, error) {
			return a.gate.Remove(ctx, c, p)
		}),
		op("check", "Consulta si el principal está revocado", func(ctx context.Context, a *app, c, p string) (bool, error) {
			return a.gate.Check(ctx, c, p)
		}),
	)
	return root
}

func authreqCmd(cfg cfgFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "authreq",
		Short: "Authorization requests PKCE",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			return requireSharedCache(cfg(), "authreq")
		},
	}

	var client, challenge, method string
	create := &cobra.Command{
		Use:   "create",
		Short: "Registra un challenge y devuelve el authorization code",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				req, err := a.authreq.Create(ctx, client, challenge, method)
				if err != nil {
					return err
				}
				return printJSON(cmd, req)
			})
		},
	}
	create.Flags().StringVar(&client, "client", "", "Client id")
	create.Flags().StringVar(&challenge, "challenge", "", "Code challenge (base64url)")
	create.Flags().StringVar(&method, "method", string(authreq.MethodSHA256), "SHA-256 | SHA-384 | SHA-512")

	var code, verifier string
	consume := &cobra.Command{
		Use:   "consume",
		Short: "Consume el authorization code (una sola vez)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				req, err := a.authreq.Consume(ctx, code)
				if err != nil {
					return err
				}
				if verifier != "" {
					if err := authreq.VerifyChallenge(req, verifier); err != nil {
						return err
					}
				}
				return printJSON(cmd, req)
			})
		},
	}
	consume.Flags().StringVar(&code, "code", "", "Authorization code")
	consume.Flags().StringVar(&verifier, "verifier", "", "Code verifier (opcional)")
	_ = consume.MarkFlagRequired("code")

	root.AddCommand(create, consume)
	return root
}
