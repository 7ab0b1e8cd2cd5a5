// The main package for the racecal executable.
package main

import (
	"github.com/JakeFAU/racecal-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
