package main

import (
	"context"
	"os"

	"ContentSync/internal/logging"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		logging.New("error", "text").Error("contentsync stopped", "error", err)
		os.Exit(1)
	}
}
