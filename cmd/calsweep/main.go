package main

import "github.com/joshsymonds/calsweep/internal/cli"

func main() {
	cli.Execute()
}
