package main

import (
	"log"

	"traffic-duplicator/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
