// featurenorm - Feature-level intensity normalization for quantitative proteomics
package main

import (
	"fmt"
	"os"

	"featurenorm/cmd/featurenorm/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
