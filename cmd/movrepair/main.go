package main

import (
	"errors"
	"fmt"
	"os"

	"movrepair/internal/atom"
	"movrepair/internal/repair"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, repair.ErrMissingAtom) || errors.Is(err, atom.ErrStructural) || errors.Is(err, atom.ErrSizeOverflow) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
