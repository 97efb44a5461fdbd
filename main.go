package main

import (
	"context"
	"errors"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		if errors.Is(err, errDiffFound) {
			os.Exit(1)
		}

		exitOnError(err)
	}
}
