package main

import "walletscope/internal/cli"

func main() {
	cli.Execute()
}
