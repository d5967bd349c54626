package main

import "akari/internal/shim"

func main() {
	shim.Run()
}
