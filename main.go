// The main package for the bootstrap executable.
package main

import (
	"os"

	"github.com/JakeFAU/realtime-cpi-bootstrap/cmd"
)

// main defers all execution to the Cobra CLI and exits with its code.
func main() {
	os.Exit(cmd.Execute())
}
