// Command coordctl is the operator CLI for event-coordinator conversations.
package main

import (
	"context"
	"os"
)

func main() {
	if err := newCLI().rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
