package main

import "github.com/FluffyKebab/mothra/cmd/mothra/cmd"

func main() {
	cmd.Execute()
}
