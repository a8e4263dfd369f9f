package main

import "leetmail/internal/cli"

func main() {
	cli.Execute()
}
