package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/sipp/internal/apperror"
	"github.com/sakif/sipp/internal/backend"
	"github.com/sakif/sipp/internal/highlight"
)

func (a *App) uploadCmd() *cobra.Command {
	var name, language string
	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a file and print its link",
		Long: `Upload FILE as a new snippet and print its link: the page URL in
remote mode, the short id in local mode. Use - to read standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.upload(cmd, args[0], name, language)
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Snippet name (default: the file's base name)")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Language for highlighting (default: from the name)")
	return cmd
}

func (a *App) upload(cmd *cobra.Command, path, name, language string) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(a.In)
		if name == "" {
			name = "stdin"
		}
	} else {
		data, err = readFile(path)
		if name == "" {
			name = filepath.Base(path)
		}
	}
	if err != nil {
		return err
	}

	facade, err := a.open(false)
	if err != nil {
		return err
	}
	defer facade.Close()

	s, err := facade.Create(cmd.Context(), name, string(data), language)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.Out, facade.Link(s.ShortID))
	return nil
}

func (a *App) listCmd() *cobra.Command {
	var (
		filter string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List snippets, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			facade, err := a.open(false)
			if err != nil {
				return err
			}
			defer facade.Close()

			snippets, err := facade.List(cmd.Context(), backend.ListOptions{Filter: filter, Limit: limit})
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(a.Out, snippets)
			}
			if len(snippets) == 0 {
				fmt.Fprintln(a.Err, "No snippets.")
				return nil
			}

			w := tabwriter.NewWriter(a.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSIZE\tUPDATED")
			for _, s := range snippets {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ShortID, s.Name, len(s.Content), s.UpdatedAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&filter, "query", "q", "", "Only snippets whose name or content contains this (case-insensitive)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of snippets (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func (a *App) getCmd() *cobra.Command {
	var raw, asJSON bool
	cmd := &cobra.Command{
		Use:   "get ID",
		Short: "Print a snippet",
		Long: `Print a snippet's content. On a terminal the content is highlighted
(markdown is rendered); --raw, or output to a pipe, prints it verbatim.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			facade, err := a.open(false)
			if err != nil {
				return err
			}
			defer facade.Close()

			s, err := facade.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(a.Out, s)
			}
			width, tty := a.terminalWidth()
			if raw || !tty {
				_, err := io.WriteString(a.Out, s.Content)
				return err
			}
			fmt.Fprintln(a.Out, highlight.ForTerminal(s.Name, s.Language, s.Content, width))
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the content verbatim")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the snippet as JSON")
	return cmd
}

func (a *App) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"delete"},
		Short:   "Delete a snippet",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			facade, err := a.open(false)
			if err != nil {
				return err
			}
			defer facade.Close()

			removed, err := facade.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return apperror.NotFound("snippet", args[0])
			}
			fmt.Fprintf(a.Out, "Deleted %s\n", args[0])
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
