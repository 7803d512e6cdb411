package main

import "github.com/Alturino/foodorder/cmd"

func main() {
	cmd.Start()
}
