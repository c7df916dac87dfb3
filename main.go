package main

import "kbengine/internal/app"

func main() {
	app.Main()
}
