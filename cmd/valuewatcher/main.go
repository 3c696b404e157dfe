package main

import "valuewatcher/internal/cli"

func main() {
	cli.Execute()
}
