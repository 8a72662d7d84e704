package main

import "github.com/dailygrind/dailygrind/internal/cli"

func main() {
	cli.Execute()
}
