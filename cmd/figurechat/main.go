package main

import (
	"os"

	"github.com/figurechat/figurechat/cmd/figurechat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
