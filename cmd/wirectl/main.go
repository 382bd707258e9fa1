// Command wirectl splits files into chunk frames and joins them back, using
// the same sender and receiver a node uses for deployments.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
