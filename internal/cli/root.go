// Package cli implements the sipp command-line client.
//
// With no arguments sipp opens the terminal browser; with a single FILE it
// uploads it. Every command talks to snippets through the access facade,
// so the same binary works against a local SQLite file or a remote
// server depending on --remote, SIPP_REMOTE_URL or the saved config.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sakif/sipp/internal/backend"
	"github.com/sakif/sipp/internal/config"
	"github.com/sakif/sipp/internal/logger"
	"github.com/sakif/sipp/internal/tui"
)

// App holds the process-level dependencies of the commands. NewApp wires
// the real ones; tests substitute streams, environment and config path.
type App struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	Getenv     func(string) string
	ConfigPath string

	// RunTUI runs the interactive browser.
	RunTUI func(tui.Source) error

	// Persistent flags.
	remoteURL string
	apiKey    string
	timeout   time.Duration
	dbPath    string
	verbose   bool

	lines *bufio.Reader
}

// NewApp returns an App bound to the process's stdio and environment.
func NewApp() *App {
	return &App{
		In:         os.Stdin,
		Out:        os.Stdout,
		Err:        os.Stderr,
		Getenv:     os.Getenv,
		ConfigPath: config.ClientPath(),
		RunTUI:     tui.Run,
	}
}

// RootCmd builds the command tree. Each call returns a fresh tree so tests
// can run commands independently.
func (a *App) RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sipp [FILE]",
		Short: "Share text snippets from the terminal",
		Long: `sipp stores text snippets and hands back a short link.

Run without arguments for the interactive browser, or pass a FILE to
upload it. Commands work against a local SQLite file unless a remote
server is configured (--remote, SIPP_REMOTE_URL, or 'sipp auth').`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return a.upload(cmd, args[0], "", "")
			}
			return a.browse()
		},
	}
	root.SetIn(a.In)
	root.SetOut(a.Out)
	root.SetErr(a.Err)

	flags := root.PersistentFlags()
	flags.StringVar(&a.remoteURL, "remote", "", "Remote server URL (default: $SIPP_REMOTE_URL or the saved config)")
	flags.StringVar(&a.apiKey, "api-key", "", "API key for the remote server (default: $SIPP_CLIENT_API_KEY or the saved config)")
	flags.DurationVar(&a.timeout, "timeout", 0, "Timeout for each remote request (default 10s)")
	flags.StringVar(&a.dbPath, "db", config.DefaultDBPath, "SQLite file used in local mode")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(
		a.uploadCmd(),
		a.authCmd(),
		a.listCmd(),
		a.getCmd(),
		a.rmCmd(),
		a.serverCmd(),
		a.hashKeyCmd(),
	)
	return root
}

// Execute runs the command line and reports failures on stderr. It
// returns the process exit code.
func (a *App) Execute(args []string) int {
	root := a.RootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(a.Err, "sipp: %v\n", err)
		return 1
	}
	return 0
}

// resolve merges flags, environment and the saved config file.
func (a *App) resolve() (config.Resolved, error) {
	file := &config.Client{}
	if a.ConfigPath != "" {
		loaded, err := config.LoadClient(a.ConfigPath)
		if err != nil {
			return config.Resolved{}, err
		}
		file = loaded
	}
	return file.Resolve(config.ClientOverrides{
		FlagRemoteURL: a.remoteURL,
		FlagAPIKey:    a.apiKey,
		FlagTimeout:   a.timeout,
		Getenv:        a.Getenv,
	})
}

// open resolves the mode and opens the facade. quiet discards logging,
// for the browser which owns the screen.
func (a *App) open(quiet bool) (*backend.Facade, error) {
	settings, err := a.resolve()
	if err != nil {
		return nil, err
	}

	log := logger.NewNop()
	if !quiet {
		level := "warn"
		if a.verbose {
			level = "debug"
		}
		if log, err = logger.New(level, true); err != nil {
			return nil, err
		}
	}
	return backend.Open(settings, a.dbPath, log)
}

func (a *App) browse() error {
	facade, err := a.open(true)
	if err != nil {
		return err
	}
	defer facade.Close()
	return a.RunTUI(facade)
}

// readLine reads one line from In, without the trailing newline.
func (a *App) readLine() (string, error) {
	if a.lines == nil {
		a.lines = bufio.NewReader(a.In)
	}
	line, err := a.lines.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// prompt writes label to stderr and reads a line from In.
func (a *App) prompt(label string) (string, error) {
	fmt.Fprint(a.Err, label)
	return a.readLine()
}

// promptSecret is prompt with echo disabled when In is a terminal.
func (a *App) promptSecret(label string) (string, error) {
	f, ok := a.In.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return a.prompt(label)
	}

	fmt.Fprint(a.Err, label)
	secret, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(a.Err)
	if err != nil {
		return "", fmt.Errorf("reading from terminal: %w", err)
	}
	return string(secret), nil
}

// terminalWidth reports the width of Out when it is a terminal.
func (a *App) terminalWidth() (int, bool) {
	f, ok := a.Out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0, true
	}
	return width, true
}
