package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"whiteshoe/server/tools/replay_catalog"
)

func main() {
	root := flag.String("dir", ".", "events directory containing run headers")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	flag.Parse()

	entries, err := replaycatalog.List(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *jsonFlag {
		payload, err := replaycatalog.MarshalEntries(entries)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(payload))
		return
	}

	for _, entry := range entries {
		fmt.Printf("%s (schema %d)\n", entry.ManifestPath, entry.Header.SchemaVersion)
		if entry.Header.Seed != "" {
			fmt.Printf("  seed: %s\n", entry.Header.Seed)
		}
		fmt.Printf("  game: vision=%s generator=%s mode=%s\n", entry.Header.Vision, entry.Header.Generator, entry.Header.Mode)
		if len(entry.Header.Options) > 0 {
			keys := make([]string, 0, len(entry.Header.Options))
			for key := range entry.Header.Options {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			fmt.Printf("  options:\n")
			for _, key := range keys {
				fmt.Printf("    %s=%s\n", key, entry.Header.Options[key])
			}
		}
		fmt.Printf("  header: %s\n", entry.HeaderPath)
	}
}
