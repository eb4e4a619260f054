// Package main provides the darksearch command-line client.
//
// darksearch runs a paginated DarkSearch query over a set of concurrent
// workers, each routing its requests through its own relay, and writes
// every collected result to a JSON file.
//
// Usage:
//
//	darksearch -k <keyword> [-o results.json] [-p start-page]
//	darksearch version
//
// See --help for all available options.
package main

func main() {
	Execute()
}
