package main

import "github.com/crypdick/pynchy-gate/internal/cli"

func main() {
	cli.Execute()
}
