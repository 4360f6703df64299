// The entrypoint for the e2ecore CLI.
package main

import (
	"log"

	"github.com/jaydenbeard/e2ecore/cmd/e2ecore/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
