// Package main is the entry point for chat-ollama, the launcher that makes
// sure a local Ollama server is up before handing off to the chat front-end.
package main

func main() {
	Execute()
}
