// Command lsdiff checks a directory-listing tool against a reference ls.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lsdiff: %v\n", err)
		os.Exit(exitCode(err))
	}
}
