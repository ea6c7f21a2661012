// The main package for the marketglass executable.
package main

import (
	"github.com/marketglass/marketglass/cmd"
)

func main() {
	cmd.Execute()
}
