// Command aibridge talks to LLM providers through one interface: chat with
// optional tools, streaming, embeddings, images, model listing and the run
// history of tool-augmented chats.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
