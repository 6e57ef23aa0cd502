package main

import (
	"os"

	"github.io/infrasutra/inboxsweep/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
