package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	err := NewRootCmd().Execute()
	if err != nil {
		if !errors.Is(err, errCasesFailed) {
			_, _ = fmt.Fprintln(os.Stderr, err)
		}

		os.Exit(1)
	}
}
