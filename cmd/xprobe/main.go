package main

import "xprobe/internal/cli"

func main() {
	cli.Execute()
}
