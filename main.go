package main

import "palpitos-backend/cmd"

func main() {
	cmd.Run()
}
