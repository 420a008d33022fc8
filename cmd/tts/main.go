package main

import (
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/skills/tts"
)

func main() {
	cli.Main(tts.Program())
}
