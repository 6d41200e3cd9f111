package main

import (
	"log"
	"os"

	"speccoh/ui"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	app, err := ui.NewApp(ui.Config{
		Port: port,
	})
	if err != nil {
		log.Fatal("Failed to create console app:", err)
	}

	log.Printf("Starting coherence console on http://localhost:%s", port)
	log.Fatal(app.Start())
}
