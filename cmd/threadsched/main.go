// Command threadsched posts recurring threads into Discord or Telegram channels.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	_ "time/tzdata"

	"threadsched/internal/app"
)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "threadsched:", err)
		return app.ExitCode(err)
	}
	return app.ExitOK
}
