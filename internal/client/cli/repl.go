package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL needs. The real App
// satisfies it; tests provide a stub.
type execIface interface {
	Upload(ctx context.Context, args []string) error
	Pause(ctx context.Context, args []string) error
	Resume(ctx context.Context, args []string) error
	Cancel(ctx context.Context, args []string) error
	Status(ctx context.Context, args []string) error
	List(ctx context.Context) error
	Notifications(ctx context.Context) error
}

const helpText = `Available commands:
  upload <path> <kind> [record] [field]   kinds: article-field, auto-attach, profile-picture, generic-attachment
  pause <id> | resume <id> | cancel <id>
  status <id>
  (l)ist
  notifications
  exit`

// runREPL reads a line from scanner, parses the first token as the command
// and dispatches to a. Handler errors are printed and the loop continues.
// The loop exits on scanner EOF, on "exit" or "quit", or when ctx is done.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for ctx.Err() == nil {
		printlnFn(fmt.Sprintf("up %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			printlnFn(helpText)
		case "upload":
			err = a.Upload(ctx, args)
		case "pause":
			err = a.Pause(ctx, args)
		case "resume":
			err = a.Resume(ctx, args)
		case "cancel":
			err = a.Cancel(ctx, args)
		case "status":
			err = a.Status(ctx, args)
		case "l", "list":
			err = a.List(ctx)
		case "notifications":
			err = a.Notifications(ctx)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err)
		}
	}
}
