// Command corpusd manages content-addressed document corpora: it syncs
// registered documents into a vector index and answers retrieval queries
// with citations.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
