package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"
)

// errQuit ends the REPL on "exit" or "quit".
var errQuit = errors.New("quit")

type access int

const (
	anyone access = iota
	guestOnly
	userOnly
)

type command struct {
	name    string
	aliases []string
	usage   string
	help    string
	access  access
	run     func(ctx context.Context, args []string) error
}

// repl is the read–eval–print loop. It owns no state beyond the command
// table; everything else is reached through the callbacks.
type repl struct {
	commands []command
	loggedIn func() bool
	prompt   func() string
	in       *lineReader
	out      io.Writer

	// before runs ahead of every command issued while logged in; the
	// command is skipped when it returns false.
	before func(ctx context.Context) bool
	// onError reports a failed command.
	onError func(ctx context.Context, err error)
}

// run reads commands until EOF, ctx cancellation or exit. It returns errQuit
// when the user asked to leave or input ended, and nil when ctx ended.
func (r *repl) run(ctx context.Context) error {
	for {
		fmt.Fprint(r.out, r.prompt())
		line, err := r.in.ReadLine(ctx)
		if err != nil {
			fmt.Fprintln(r.out)
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, io.EOF):
				return errQuit
			}
			return err
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		name, args := parts[0], parts[1:]

		switch name {
		case "exit", "quit":
			fmt.Fprintln(r.out, "Bye!")
			return errQuit
		case "help", "?":
			r.help()
			continue
		}

		cmd, ok := r.lookup(name)
		if !ok {
			fmt.Fprintln(r.out, "Unknown command:", name)
			continue
		}
		loggedIn := r.loggedIn()
		switch {
		case cmd.access == userOnly && !loggedIn:
			fmt.Fprintln(r.out, "Please log in first")
			continue
		case cmd.access == guestOnly && loggedIn:
			fmt.Fprintln(r.out, "Already logged in")
			continue
		}

		if loggedIn && r.before != nil && !r.before(ctx) {
			continue
		}
		if err := cmd.run(ctx, args); err != nil {
			r.onError(ctx, err)
		}
	}
}

func (r *repl) lookup(name string) (command, bool) {
	for _, c := range r.commands {
		if c.name == name || slices.Contains(c.aliases, name) {
			return c, true
		}
	}
	return command{}, false
}

func (r *repl) help() {
	loggedIn := r.loggedIn()
	fmt.Fprintln(r.out, "Available commands:")
	for _, c := range r.commands {
		if (c.access == userOnly && !loggedIn) || (c.access == guestOnly && loggedIn) {
			continue
		}
		usage := c.name
		if c.usage != "" {
			usage += " " + c.usage
		}
		fmt.Fprintf(r.out, "  %s %s\n", color.YellowString("%-28s", usage), c.help)
	}
	fmt.Fprintf(r.out, "  %s %s\n", color.YellowString("%-28s", "exit"), "leave the program")
}
