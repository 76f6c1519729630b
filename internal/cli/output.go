package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// operator writes human-facing messages to stderr. Styling degrades to
// plain text when the writer is not a terminal.
type operator struct {
	w    io.Writer
	warn lipgloss.Style
	hint lipgloss.Style
}

func newOperator(w io.Writer) *operator {
	r := lipgloss.NewRenderer(w)
	return &operator{
		w:    w,
		warn: r.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
		hint: r.NewStyle().Faint(true),
	}
}

func (o *operator) Warn(msg string) {
	fmt.Fprintln(o.w, o.warn.Render("saferm: "+msg))
}

func (o *operator) Usage(msg, hint string) {
	fmt.Fprintln(o.w, "saferm: "+msg)
	if hint != "" {
		fmt.Fprintln(o.w, o.hint.Render(hint))
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}

func printYAML(cmd *cobra.Command, v any) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
