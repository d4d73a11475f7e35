// Command ssmergerd runs the manga-library union-mount supervisor
// daemon described in this module's specification.
package main

import (
	"fmt"
	"os"

	"github.com/cjmanca/ssmergerd/cmd/ssmergerd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
