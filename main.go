package main

import "sugarwatch/internal/cli"

func main() {
	cli.Execute()
}
