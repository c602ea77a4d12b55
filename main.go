// The main package for the directory executable.
package main

import (
	"github.com/JakeFAU/product-directory/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
