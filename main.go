package main

import "github.com/ethpandaops/execution-simulator/cmd"

func main() {
	cmd.Execute()
}
