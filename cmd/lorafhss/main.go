package main

import "github.com/headblockhead/lorafhss/internal/cli"

func main() {
	cli.Execute()
}
