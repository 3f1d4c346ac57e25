package main

import (
	"fmt"
	"os"
	// distrolessイメージにはタイムゾーンDBがないため埋め込む
	_ "time/tzdata"

	"github.com/hitoshi/moai/internal/app"
)

func main() {
	if err := app.Run(os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "moai: %v\n", err)
		os.Exit(1)
	}
}
