package main

import (
	"github.com/nrsc-chatbot/portal-api/app"
	"github.com/nrsc-chatbot/portal-api/utils/logging"
)

func main() {
	// setup and run app
	if err := app.SetupAndRunServer(); err != nil {
		logging.Fatal().Err(err).Msg("[SETUP] server exited")
	}
}
