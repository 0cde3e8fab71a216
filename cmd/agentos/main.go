// agentos is the multi-agent coding-session control plane CLI.
package main

import (
	"os"

	"github.com/saadnvd1/agentos/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
