// cmd/kvdbctl/main.go
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/chzyer/readline"

	"github.com/DeltaLaboratory/kvdb/cmd/kvdbctl/parser"
	"github.com/DeltaLaboratory/kvdb/internal/client"
)

const helpText = `kvdbctl — send commands to a kvdb node.

  USE <db>
  CREATE_DB <db>
  ENABLE_DB <db>
  DISABLE_DB <db>
  GET <key> [<key> ...]
  PUT <key> <value> [<key> <value> ...]
  EXISTS <key> [<key> ...]
  BATCH_BEGIN
  BATCH_ABORT
  BATCH_COMMIT [expected_size]
  SHOW_DBS
  CLUSTER_INFO

Type '.exit' to quit.`

var addr = flag.String("addr", "localhost:7060", "node address (manager port for admin commands)")

func main() {
	flag.Parse()

	c, err := client.Dial(*addr)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer c.Close()

	rl, err := readline.NewEx(&readline.Config{Prompt: "kvdb> "})
	if err != nil {
		log.Fatalf("failed to initialize readline: %v", err)
	}
	defer rl.Close()

	fmt.Println("kvdbctl (type '.help' for commands, '.exit' to quit)")
	for {
		line, err := rl.Readline()
		if err != nil {
			break
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case ".help":
			fmt.Println(helpText)
			continue
		case ".exit":
			return
		}

		run(c, line)
	}
}

func run(c *client.Client, line string) {
	tokens, err := parser.Tokenize(line)
	if err != nil {
		fmt.Println("parse error:", err)
		return
	}

	name := strings.ToUpper(tokens[0])
	args := make([][]byte, len(tokens)-1)
	for i, t := range tokens[1:] {
		args[i] = []byte(t)
	}

	resp, err := c.Call(name, args...)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	if len(resp.Result) == 0 {
		fmt.Println("OK")
		return
	}
	for _, r := range resp.Result {
		if r == nil {
			fmt.Println("(nil)")
			continue
		}
		fmt.Printf("%s\n", r)
	}
}
