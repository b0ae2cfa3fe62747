package main

import "bist-tracker/internal/cli"

func main() {
	cli.Execute()
}
