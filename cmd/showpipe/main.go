package main

import (
	"os"

	"horse.fit/showpipe/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
