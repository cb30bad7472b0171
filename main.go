package main

import (
	"errors"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// The summary already told the user what failed.
		if errors.Is(err, errRunFailed) {
			os.Exit(1)
		}

		exitOnError(err)
	}
}
