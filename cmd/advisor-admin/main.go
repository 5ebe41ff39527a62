// Command advisor-admin performs tenant lifecycle and maintenance tasks against
// the compliance advisor database and secret store.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(defaultEnv()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, describeFailure(err))
		os.Exit(1)
	}
}
