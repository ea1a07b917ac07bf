// Command ragctl inspects corpus chunking, retrieval and prompt assembly
// without running the chat service.
//
// Usage:
//
//	go run ./cmd/ragctl chunk --corpus data/knowledge.txt
//	go run ./cmd/ragctl search "vacation policy" -k 5
//	go run ./cmd/ragctl prompt "How do I file expenses?"
package main

import "github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/cli"

func main() {
	cli.Execute()
}
