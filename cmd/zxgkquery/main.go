// File: cmd/zxgkquery/main.go
package main

import (
	"context"
	"errors"
	"os"

	"github.com/wjleong/zxgkquery/cmd"
	"github.com/wjleong/zxgkquery/internal/observability"
)

func main() {
	// Signal handling lives in the run command: the first interrupt asks the
	// pipeline to stop cooperatively, so the context must not be cancelled
	// out from under the record in flight.
	err := cmd.Execute(context.Background())
	observability.Sync()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
