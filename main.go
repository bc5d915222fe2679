package main

import (
	"fmt"
	"os"

	"github.com/guianderson/terrama2/cmd"
	"github.com/guianderson/terrama2/internal/conf"
)

func main() {
	settings := &conf.Settings{}
	if err := cmd.RootCommand(settings).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
