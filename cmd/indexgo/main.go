package main

import (
	"github.com/dyike/IndexGo/internal/cli"
)

func main() {
	cli.Run()
}
