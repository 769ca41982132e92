package main

import "datavault/cli"

func main() {
	cli.Execute()
}
