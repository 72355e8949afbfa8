// Package main is the livevision command itself.
package main

import (
	"log"
	"os"

	lvcli "go.viam.com/livevision/cli"
)

func main() {
	app := lvcli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
