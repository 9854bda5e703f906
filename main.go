package main

import (
	"github.com/luma/respkv/cmd"
)

func main() {
	cmd.Execute()
}
