// Command gauntlet evaluates LLMs against scored test cases and reports
// per-model statistics.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
