package main

import "txtvec/internal/cli"

func main() {
	cli.Execute()
}
