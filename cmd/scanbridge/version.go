// version.go — команда version.
package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/bigkaa/scanbridge/internal/config"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию агента",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("scanbridge %s (%s/%s, %s)\n",
				config.Version, runtime.GOOS, runtime.GOARCH, runtime.Version())
		},
	}
}
