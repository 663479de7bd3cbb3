package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/sipp/internal/auth"
	"github.com/sakif/sipp/internal/backend"
	"github.com/sakif/sipp/internal/config"
	"github.com/sakif/sipp/internal/logger"
	"github.com/sakif/sipp/internal/server"
)

func (a *App) authCmd() *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Save the remote server URL and API key",
		Long: `Prompt for a remote server URL and API key and save them to the
client config file. Later commands then run in remote mode. --remote and
--api-key skip the matching prompt; --local clears both and returns to
local mode.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.ConfigPath == "" {
				return config.ErrNoConfigPath
			}
			cfg, err := config.LoadClient(a.ConfigPath)
			if err != nil {
				return err
			}

			if local {
				cfg.RemoteURL = ""
				cfg.APIKey = ""
				if err := cfg.Save(); err != nil {
					return err
				}
				fmt.Fprintf(a.Out, "Local mode. Saved %s\n", cfg.Path())
				return nil
			}

			url := a.remoteURL
			if url == "" {
				label := "Remote URL: "
				if cfg.RemoteURL != "" {
					label = fmt.Sprintf("Remote URL [%s]: ", cfg.RemoteURL)
				}
				if url, err = a.prompt(label); err != nil {
					return err
				}
				if strings.TrimSpace(url) == "" {
					url = cfg.RemoteURL
				}
			}
			url = strings.TrimRight(strings.TrimSpace(url), "/")
			remote, err := backend.NewRemote(backend.RemoteOptions{BaseURL: url})
			if err != nil {
				return err
			}
			remote.Close()

			key := a.apiKey
			if key == "" {
				if key, err = a.promptSecret("API key (empty for none): "); err != nil {
					return err
				}
			}

			cfg.RemoteURL = url
			cfg.APIKey = strings.TrimSpace(key)
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Fprintf(a.Out, "Saved %s\n", cfg.Path())
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Forget the remote server and use local mode")
	return cmd
}

func (a *App) serverCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP server",
		Long: `Run the sipp HTTP server. Configuration comes from SIPP_* environment
variables (SIPP_ADDR, SIPP_DB, SIPP_API_KEY, SIPP_PROTECTED, ...); --addr and
--db override the matching variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadServer(a.Getenv)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("db") {
				cfg.DBPath = a.dbPath
			}

			log, err := logger.New(cfg.LogLevel, cfg.PrettyLog)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := server.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: $SIPP_ADDR or :3000)")
	return cmd
}

func (a *App) hashKeyCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-key [KEY]",
		Short: "Print a bcrypt hash of an API key for SIPP_API_KEY",
		Long: `Print a bcrypt hash of KEY. Setting SIPP_API_KEY to the hash instead of
the plain key keeps the key itself out of the server's environment.
Without KEY the key is read from the terminal.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				var err error
				if key, err = a.promptSecret("Key: "); err != nil {
					return err
				}
			}

			hashed, err := auth.HashKey(key, cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.Out, hashed)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", auth.DefaultCost, "bcrypt cost")
	return cmd
}
