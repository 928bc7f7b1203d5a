package main

import "github.com/nsyszr/punchclock/cmd"

func main() {
	cmd.Execute()
}
