package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"spendly/internal/app"
	"spendly/internal/cli"
	"spendly/internal/core"
	"spendly/internal/form"
	"spendly/internal/log"
	"spendly/internal/store"
	"spendly/internal/view"
)

var errNotConfirmed = errors.New("not confirmed; pass --yes to delete without a prompt")

// env carries the process streams and hooks so tests can replace them.
type env struct {
	out   io.Writer
	in    io.Reader
	isTTY func() bool
	clip  app.Clipboard
	open  func(ctx context.Context, configPath string) (*cli.Runtime, error)

	configPath string
	rt         *cli.Runtime
}

type systemClipboard struct{}

func (systemClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return app.ErrNoClipboard
	}
	return clipboard.WriteAll(text)
}

func defaultEnv() *env {
	return &env{
		out:   os.Stdout,
		in:    os.Stdin,
		isTTY: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
		clip:  systemClipboard{},
		open:  openRuntime,
	}
}

func openRuntime(ctx context.Context, configPath string) (*cli.Runtime, error) {
	cli.LoadEnvFile()
	cfg, err := cli.LoadAndValidateConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := cli.SetupLogger(cfg, log.ComponentCLI, os.Stderr)
	return cli.Bootstrap(ctx, cfg, logger, cli.Options{})
}

// close releases the runtime opened for the last command, if any.
func (e *env) close() error {
	if e.rt == nil {
		return nil
	}
	err := e.rt.Close()
	e.rt = nil
	return err
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "spendly-cli",
		Short:         "Record and review expenses",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["offline"] == "true" {
				return nil
			}
			rt, err := e.open(cmd.Context(), e.configPath)
			if err != nil {
				return err
			}
			e.rt = rt
			return nil
		},
	}
	root.SetOut(e.out)
	root.PersistentFlags().StringVarP(&e.configPath, "config", "c", cli.DefaultConfigPath, "YAML config file")

	root.AddCommand(
		newAddCmd(e),
		newListCmd(e),
		newRemoveCmd(e),
		newCopyCmd(e),
		newCategoriesCmd(e),
	)
	return root
}

func newAddCmd(e *env) *cobra.Command {
	var in form.Input
	cmd := &cobra.Command{
		Use:   "add [AMOUNT]",
		Short: "Record an expense",
		Long: "Record an expense. The amount may be given as --amount or as the " +
			"only argument. The date defaults to today and the category to the " +
			"one used last.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			draft := e.rt.App.OpenForm(ctx).Input
			draft.Amount = in.Amount
			if len(args) == 1 {
				if in.Amount != "" {
					return errors.New("amount given twice")
				}
				draft.Amount = args[0]
			}
			if in.Category != "" {
				draft.Category = in.Category
			}
			if in.Date != "" {
				draft.Date = in.Date
			}
			draft.Note = in.Note

			exp, _, err := e.rt.App.Submit(ctx, draft)
			if err != nil {
				var verr *form.ValidationError
				if errors.As(err, &verr) {
					return fmt.Errorf("invalid expense: %s", verr.Error())
				}
				if errors.Is(err, store.ErrPersist) {
					return fmt.Errorf("expense %s was not saved: %w", exp.ID, err)
				}
				return err
			}
			c := core.DisplayCategory(exp.Category)
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s %s %s on %s (%s)\n",
				view.FormatAmount(exp.Amount), c.Icon, c.Label, exp.Date, exp.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in.Amount, form.FieldAmount, "a", "", "amount, e.g. 12.50")
	cmd.Flags().StringVarP(&in.Category, form.FieldCategory, "k", "", "category id, as listed by the categories command")
	cmd.Flags().StringVarP(&in.Note, form.FieldNote, "n", "", "free-text note")
	cmd.Flags().StringVarP(&in.Date, form.FieldDate, "d", "", "date as YYYY-MM-DD")
	return cmd
}

func addRangeFlags(cmd *cobra.Command, start, end *string) {
	cmd.Flags().StringVar(start, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(end, "to", "", "last day, YYYY-MM-DD")
}

func newListCmd(e *env) *cobra.Command {
	var start, end string
	var showIDs bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show expenses grouped by day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := e.rt.App.SetRange(start, end); err != nil {
				return err
			}
			writeSummary(cmd.OutOrStdout(), view.Build(e.rt.App.Summary()), showIDs)
			return nil
		},
	}
	addRangeFlags(cmd, &start, &end)
	cmd.Flags().BoolVar(&showIDs, "ids", false, "print record ids")
	return cmd
}

func writeSummary(out io.Writer, v view.Summary, showIDs bool) {
	if v.ShowRange {
		fmt.Fprintf(out, "Showing expenses from %s to %s\n", v.Start, v.End)
	}
	fmt.Fprintf(out, "Total %s (%d)\n", v.Total, v.Count)
	if v.Empty {
		fmt.Fprintln(out, view.EmptyMessage)
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, g := range v.Groups {
		fmt.Fprintf(tw, "\n%s\t\t%s\n", g.Heading, g.Total)
		for _, it := range g.Items {
			label := it.Label
			if note := strings.TrimSpace(it.Note); note != "" {
				label += " (" + note + ")"
			}
			if showIDs {
				fmt.Fprintf(tw, "  %s %s\t%s\t%s\n", it.Icon, label, it.Amount, it.ID)
			} else {
				fmt.Fprintf(tw, "  %s %s\t%s\n", it.Icon, label, it.Amount)
			}
		}
	}
	_ = tw.Flush()
}

func newRemoveCmd(e *env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"delete"},
		Short:   "Delete an expense",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			confirmed := yes
			if !confirmed {
				if !e.isTTY() {
					return errNotConfirmed
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Delete %s? [y/N] ", id)
				answer, _ := bufio.NewReader(e.in).ReadString('\n')
				answer = strings.ToLower(strings.TrimSpace(answer))
				confirmed = answer == "y" || answer == "yes"
			}

			removed, err := e.rt.App.Delete(cmd.Context(), id, confirmed)
			switch {
			case removed && errors.Is(err, store.ErrPersist):
				return fmt.Errorf("removal of %s was not saved: %w", id, err)
			case err != nil:
				return err
			case !confirmed:
				fmt.Fprintln(cmd.OutOrStdout(), "Kept.")
			case !removed:
				return fmt.Errorf("no expense with id %q", id)
			default:
				fmt.Fprintln(cmd.OutOrStdout(), "Deleted.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newCopyCmd(e *env) *cobra.Command {
	var start, end string
	var toStdout bool
	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy the day-by-day digest to the clipboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := e.rt.App.SetRange(start, end); err != nil {
				return err
			}
			if toStdout {
				fmt.Fprintln(cmd.OutOrStdout(), e.rt.App.Digest(e.rt.App.Range()))
				return nil
			}
			if _, err := e.rt.App.CopyAll(cmd.Context(), e.clip); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Copied!")
			return nil
		},
	}
	addRangeFlags(cmd, &start, &end)
	cmd.Flags().BoolVar(&toStdout, "print", false, "write the digest to stdout instead")
	return cmd
}

func newCategoriesCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:         "categories",
		Short:       "List category ids",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"offline": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, c := range core.Categories() {
				fmt.Fprintf(tw, "%s\t%s %s\n", c.ID, c.Icon, c.Label)
			}
			return tw.Flush()
		},
	}
}
