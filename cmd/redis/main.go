package main

import (
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/skills/redis"
)

func main() {
	cli.Main(redis.Program())
}
