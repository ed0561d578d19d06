// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ManuGH/minios/internal/sandbox"
	"github.com/ManuGH/minios/internal/shell"
)

// ExecCmd runs one terminal command against the data dir.
type ExecCmd struct {
	Command []string `arg:"" passthrough:"" help:"Command line, e.g. 'ls docs' or 'set x 42'."`
}

func (c *ExecCmd) Run(e *env) error {
	term := shell.New(e.eng, nil, shell.Options{})
	res := term.Exec(e.ctx, strings.Join(c.Command, " "))
	for _, line := range res.Lines {
		fmt.Fprintln(e.out, line)
	}
	if res.Failed() {
		return errReported
	}
	return nil
}

// TrashCmd groups the trash subcommands.
type TrashCmd struct {
	List    TrashListCmd    `cmd:"" default:"1" help:"List trashed items, newest first."`
	Restore TrashRestoreCmd `cmd:"" help:"Restore an item by id or original file name."`
	Empty   TrashEmptyCmd   `cmd:"" help:"Permanently delete everything in the trash."`
}

type TrashListCmd struct {
	JSON bool `help:"Print JSON instead of a table."`
}

func (c *TrashListCmd) Run(e *env) error {
	items := e.eng.FS().TrashItems()
	if c.JSON {
		enc := json.NewEncoder(e.out)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	if len(items) == 0 {
		fmt.Fprintln(e.out, "Trash is empty.")
		return nil
	}
	tw := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tORIGINAL PATH\tDELETED")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", it.ID, it.OriginalPath, it.DeletedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

type TrashRestoreCmd struct {
	Target string `arg:"" help:"Trash id, or the base name of the deleted item."`
}

// Run tries Target as an id first, then as a name; a name restores the most
// recently deleted match.
func (c *TrashRestoreCmd) Run(e *env) error {
	fs := e.eng.FS()
	item, err := fs.Restore(c.Target)
	if errors.Is(err, sandbox.ErrNotFound) {
		found, ferr := fs.FindTrashByName(c.Target)
		if ferr != nil {
			return ferr
		}
		item, err = fs.Restore(found.ID)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Restored %s\n", item.OriginalPath)
	return nil
}

type TrashEmptyCmd struct{}

func (c *TrashEmptyCmd) Run(e *env) error {
	n, err := e.eng.FS().EmptyTrash()
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Removed %d item(s).\n", n)
	return nil
}

// UserCmd groups the account subcommands.
type UserCmd struct {
	Add  UserAddCmd  `cmd:"" help:"Register a login account."`
	List UserListCmd `cmd:"" help:"List login accounts."`
}

type UserAddCmd struct {
	Email    string `arg:"" help:"Account email."`
	Password string `required:"" env:"MINIOS_USER_PASSWORD" help:"Account password."`
}

func (c *UserAddCmd) Run(e *env) error {
	if err := e.eng.Modules().Login().Register(c.Email, c.Password); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Registered %s\n", strings.ToLower(strings.TrimSpace(c.Email)))
	return nil
}

type UserListCmd struct{}

func (c *UserListCmd) Run(e *env) error {
	tw := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tCREATED")
	for _, u := range e.eng.Modules().Login().Users() {
		fmt.Fprintf(tw, "%s\t%s\n", u.Email, u.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

// StateCmd groups the state subcommands.
type StateCmd struct {
	Show StateShowCmd `cmd:"" default:"1" help:"Print the system summary as JSON."`
}

type StateShowCmd struct{}

func (c *StateShowCmd) Run(e *env) error {
	info, err := e.eng.Info()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}
