package main

import "github.com/mchmarny/leadscore/pkg/cli"

func main() {
	cli.Execute()
}
