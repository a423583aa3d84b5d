package main

import (
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	_ "golang.org/x/crypto/x509roots/fallback" // We need this to make TLS work in scratch containers

	"threadsrss/cmd"
)

func main() {
	// A missing .env file is fine
	_ = godotenv.Load()

	if err := cmd.RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
