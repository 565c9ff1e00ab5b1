package main

import (
	"errors"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errCycleIncomplete) {
			os.Exit(2)
		}

		exitOnError(err)
	}
}
