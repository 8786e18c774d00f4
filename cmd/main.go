package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/MimeLyc/contextual-book-translator/internal/service"
	"github.com/MimeLyc/contextual-book-translator/pkg/log"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := newRootCmd().ExecuteContext(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		log.Warn("interrupted, finished chapters are cached; re-run to resume")
		os.Exit(130)
	default:
		service.NewDefaultErrorHandler(nil).Handle(err)
		os.Exit(1)
	}
}
