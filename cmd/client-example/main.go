package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/memento-kv/memento/pkg/client"
	"github.com/memento-kv/memento/pkg/config"
)

const usage = `usage: client-example [-nodes host:port,...] [command]

commands:
  add <key> <value>   store value under key
  get <key>           print the value stored under key
  demo                store and read back a few keys (default)
`

func main() {
	cfg, err := config.LoadClientConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	nodes := flag.String("nodes", strings.Join(cfg.Nodes, ","), "Comma-separated server addresses")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	cfg.Nodes = strings.Split(*nodes, ",")

	c, err := client.NewWithConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer c.Close()

	args := flag.Args()
	if len(args) == 0 {
		args = []string{"demo"}
	}

	switch args[0] {
	case "add":
		if len(args) != 3 {
			flag.Usage()
			os.Exit(2)
		}
		if err := c.Add(args[1], args[2]); err != nil {
			log.Fatalf("ADD failed: %v", err)
		}
		fmt.Println("OK")

	case "get":
		if len(args) != 2 {
			flag.Usage()
			os.Exit(2)
		}
		value, found, err := c.Get(args[1])
		if err != nil {
			log.Fatalf("GET failed: %v", err)
		}
		if !found {
			fmt.Println("(nil)")
			os.Exit(1)
		}
		fmt.Println(value)

	case "demo":
		demo(c)

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func demo(c *client.Client) {
	fmt.Println("=== memento client example ===")

	users := map[string]string{
		"user:1": "alice",
		"user:2": "bob",
		"user:3": "carol",
	}
	for key, value := range users {
		if err := c.Add(key, value); err != nil {
			log.Printf("ADD %s failed: %v", key, err)
			continue
		}
		fmt.Printf("✓ ADD %s = %s\n", key, value)
	}

	for _, key := range []string{"user:1", "user:2", "user:3", "user:4"} {
		value, found, err := c.Get(key)
		switch {
		case err != nil:
			log.Printf("GET %s failed: %v", key, err)
		case !found:
			fmt.Printf("✓ GET %s = (nil)\n", key)
		default:
			fmt.Printf("✓ GET %s = %s\n", key, value)
		}
	}

	if err := c.Add("user:1", "alice-updated"); err != nil {
		log.Printf("ADD user:1 failed: %v", err)
	} else if value, _, err := c.Get("user:1"); err == nil {
		fmt.Printf("✓ overwrite user:1 = %s\n", value)
	}

	if err := c.Add(`bad"key`, "value"); err != nil {
		fmt.Printf("✓ rejected unencodable key: %v\n", err)
	}
}
