package main

import "github.com/vietddude/geyserpg/internal/cli"

func main() {
	cli.Execute()
}
