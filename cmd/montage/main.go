package main

import "github.com/montagehq/montage/internal/cli"

func main() {
	cli.Main()
}
