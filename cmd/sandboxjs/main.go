package main

import (
	"context"
	"fmt"
	"os"

	"github.com/grafana/jsvm/cmd/sandboxjs/sandboxjscmd"
)

func main() {
	if err := sandboxjscmd.Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
