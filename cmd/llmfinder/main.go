// Command llmfinder identifies the language model behind a chat endpoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/llmfinder/llmfinder/cmd/llmfinder/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := commands.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
