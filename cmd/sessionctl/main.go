// Command sessionctl is a thin cobra entrypoint exercising the
// clisession library end-to-end: one cobra command per file under a
// shared rootCmd.
package main

import "os"

func main() {
	os.Exit(run())
}

func run() int {
	if err := rootCmd.Execute(); err != nil {
		return exitCodeFor(err)
	}
	return exitSuccess
}
