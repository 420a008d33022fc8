package main

import (
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/skills/salesforce"
)

func main() {
	cli.Main(salesforce.Program())
}
