// codeflare plans, renders and runs YAML-defined pipeline DAGs.
//
// Usage:
//
//	codeflare plan   -f pipeline.yaml
//	codeflare render -f pipeline.yaml [-o chart.mmd]
//	codeflare run    -f pipeline.yaml -i inputs.yaml [--parallel N] [--mode fit|transform]
//	codeflare serve
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
