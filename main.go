package main

import "github.com/mselser95/polymarket-surveillance/cmd"

func main() {
	cmd.Execute()
}
