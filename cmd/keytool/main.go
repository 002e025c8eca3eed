package main

import (
	"os"

	"github.com/dmitrijs2005/geoupload/internal/keytool"
)

func main() {
	if err := keytool.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
