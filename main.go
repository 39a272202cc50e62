package main

import (
	"fmt"
	"os"

	cmd "github.com/relaypg/relaypg/cmd/relaypg"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		if err := cmd.RunInit(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "generate", "gen":
		if err := cmd.RunGenerate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "serve":
		if err := cmd.RunServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version", "-v", "--version":
		fmt.Printf("relaypg version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`relaypg - Relay GraphQL server over PostgreSQL

Usage:
  relaypg <command> [options]

Commands:
  init        Scaffold config.yaml and models.yaml in the current directory
  generate    Write the generated GraphQL schema to a file (alias: gen)
  serve       Start the GraphQL HTTP server
  version     Print version information
  help        Show this help message

Examples:
  relaypg init
  relaypg generate --models models.yaml --out schema.graphql
  relaypg serve

Configuration:
  serve reads config.yaml (override with CONFIG_PATH) and the model
  definitions it points at. Every setting can also come from the
  environment, see config.yaml comments for variable names.`)
}
