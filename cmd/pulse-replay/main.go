// Command pulse-replay replays recorded OOK captures through a sub-GHz
// radio module.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(newApp()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pulse-replay:", err)
		os.Exit(1)
	}
}
