package main

import "sqlnosql/internal/cli"

func main() {
	cli.Execute()
}
