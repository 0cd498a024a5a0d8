// Command spendly-cli records and reviews expenses from the terminal against
// the same storage as the web app.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	e := defaultEnv()
	err := newRootCmd(e).ExecuteContext(context.Background())
	err = errors.Join(err, e.close())
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
