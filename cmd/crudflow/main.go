package main

import (
	"fmt"
	"os"

	"github.com/drblury/crudflow/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "crudflow:", err)
		os.Exit(1)
	}
}
