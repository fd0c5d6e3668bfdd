package main

import "overlay-llm-client/cli"

func main() {
	cli.Execute()
}
