package main

import "github.com/johnnyhall81/clientdining-v1-sub000/internal/cli"

func main() {
	cli.Execute()
}
