// Package main is the claimsctl admin CLI.
package main

import (
	"os"

	"github.com/kylejryan/claims-portal/cmd/claimsctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
