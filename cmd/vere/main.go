// Command vere runs a pier.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/vere/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "vere:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
