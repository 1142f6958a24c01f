// Command ovhelper manages a local Ollama server accelerated with OpenVINO.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sebastianlutter/ollama-openvino-helper/cmd/ovhelper/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := app.NewOvhelperCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		// Container and exec exit codes pass through without decoration.
		var exitErr *app.ExitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
