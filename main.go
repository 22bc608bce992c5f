// The main package for the essaypub executable.
package main

import (
	"os"

	"github.com/JakeFAU/essaypub/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
