// Package cli provides the interactive uploader client.
//
// It wraps the scheduler in a small REPL: files are submitted with an upload
// context, tasks can be paused, resumed and canceled, and progress from the
// event bus is rendered as progress bars when stdout is a terminal or as
// plain lines otherwise.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits or
// ctx is done. See runREPL for the command set.
package cli
