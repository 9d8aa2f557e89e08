package main

import (
	"os"

	"github.com/grovetools/tabwatt/cli"
	"github.com/grovetools/tabwatt/cmd"
)

func main() {
	if err := cli.Execute(cmd.NewRootCmd()); err != nil {
		os.Exit(1)
	}
}
