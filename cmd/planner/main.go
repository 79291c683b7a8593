package main

import (
	"fmt"
	"os"

	"github.com/ChuLiYu/decision-engine/internal/cli"
)

var version = "dev"

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", r)
			os.Exit(1)
		}
	}()

	cli.Version = version
	if err := cli.BuildCLI().Execute(); err != nil {
		os.Exit(1)
	}
}
