package main

import "github.com/MeKo-Tech/coincount/cmd/coincount/cmd"

func main() {
	cmd.Execute()
}
