package main

import (
	"log"

	"github.com/kedaiservis/repair-service/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
