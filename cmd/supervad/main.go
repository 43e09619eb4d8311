// Command supervad segments speech from a microphone, a WebSocket stream or
// a WAV file.
//
// Usage:
//
//	supervad listen              segment the default microphone
//	supervad serve               run the WebSocket ingest server
//	supervad file <input.wav>    segment a 16kHz mono WAV file
//
// Settings come from the environment (a .env file is loaded first) and an
// optional YAML file named by SUPERVAD_CONFIG.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
