package main

import "venuefinds/internal/app"

func main() {
	app.Main()
}
