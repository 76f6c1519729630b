// Package alert raises external notifications for protected-path and
// honeypot events. Delivery is fire-and-forget: a failing notifier never
// changes the outcome of a deletion.
package alert

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"text/template"
	"time"
)

// Alert is the payload handed to every notifier.
type Alert struct {
	Title   string    `json:"title"`
	Message string    `json:"message"`
	User    string    `json:"user"`
	Host    string    `json:"host"`
	Time    time.Time `json:"time"`
}

type Notifier interface {
	Notify(a Alert) error
}

// Fanout delivers to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(a Alert) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every member that holds resources.
func (f Fanout) Close() error {
	var errs []error
	for _, n := range f {
		if c, ok := n.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// CommandNotifier starts an external command built from an argv template.
// Each element is a text/template over Alert, so placeholders are
// substituted per argument and nothing passes through a shell.
type CommandNotifier struct {
	argv []*template.Template

	// start launches the command; tests replace it.
	start func(cmd *exec.Cmd) error
}

func NewCommandNotifier(argv []string) (*CommandNotifier, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("alert command is empty")
	}
	n := &CommandNotifier{start: startDetached}
	for i, a := range argv {
		t, err := template.New(fmt.Sprintf("arg%d", i)).Option("missingkey=zero").Parse(a)
		if err != nil {
			return nil, fmt.Errorf("alert command arg %d: %w", i, err)
		}
		n.argv = append(n.argv, t)
	}
	return n, nil
}

// Render substitutes the alert into the argv template.
func (n *CommandNotifier) Render(a Alert) ([]string, error) {
	out := make([]string, 0, len(n.argv))
	for _, t := range n.argv {
		var buf bytes.Buffer
		if err := t.Execute(&buf, a); err != nil {
			return nil, err
		}
		out = append(out, buf.String())
	}
	if out[0] == "" {
		return nil, fmt.Errorf("alert command renders to empty program")
	}
	return out, nil
}

func (n *CommandNotifier) Notify(a Alert) error {
	argv, err := n.Render(a)
	if err != nil {
		return fmt.Errorf("render alert command: %w", err)
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := n.start(cmd); err != nil {
		return fmt.Errorf("start alert command: %w", err)
	}
	return nil
}

// startDetached starts cmd without waiting for it.
func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}
