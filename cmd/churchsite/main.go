package main

import "churchsite/internal/cli"

func main() {
	cli.Execute()
}
