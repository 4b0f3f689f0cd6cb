// Package utils holds the command-line helpers: argument parsing, usage
// text and folder walking.
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Commands understood by the binary.
var commands = []string{"index", "search", "rebuild", "stats"}

// ParseArguments converts command-line arguments into a map of flags and
// values. The first bare word matching a known command lands under the
// "command" key; flags are accepted as --key=value, --key value and bare
// boolean --key forms.
func ParseArguments() map[string]string {
	args := make(map[string]string)

	command := ""
	commandIndex := -1
	for i := 1; i < len(os.Args); i++ {
		for _, c := range commands {
			if os.Args[i] == c {
				command = os.Args[i]
				commandIndex = i
				break
			}
		}
		if command != "" {
			break
		}
	}

	if command != "" {
		args["command"] = command
	}

	for i := 1; i < len(os.Args); i++ {
		if i == commandIndex {
			continue
		}

		arg := os.Args[i]

		// Handle flags with equals sign (--key=value)
		if strings.HasPrefix(arg, "--") && strings.Contains(arg, "=") {
			parts := strings.SplitN(arg, "=", 2)
			flagName := strings.TrimPrefix(parts[0], "--")
			args[flagName] = parts[1]
			continue
		}

		// Handle flags without equals sign (--key value) and bare booleans
		if strings.HasPrefix(arg, "--") {
			flagName := strings.TrimPrefix(arg, "--")

			if i+1 >= len(os.Args) || strings.HasPrefix(os.Args[i+1], "--") {
				args[flagName] = "true"
			} else {
				args[flagName] = os.Args[i+1]
				i++
			}
		}
	}

	return args
}

// GetDefaultDatabasePath returns the default location of the index database,
// next to the executable.
func GetDefaultDatabasePath() string {
	exePath, err := os.Executable()
	if err != nil {
		return "imagesim.db"
	}
	return filepath.Join(filepath.Dir(exePath), "imagesim.db")
}

// PrintUsage outputs the command-line usage instructions.
func PrintUsage() {
	fmt.Printf("Usage:\n")
	fmt.Printf("  %s index --folder=PATH [--store=NAME] [--database=PATH] [--force] [--debug]\n", os.Args[0])
	fmt.Printf("  %s search --image=PATH [--store=NAME] [--database=PATH] [--threshold=VALUE] [--limit=N] [--offset=N] [--debug]\n", os.Args[0])
	fmt.Printf("  %s rebuild --folder=PATH [--store=NAME] [--database=PATH] [--debug]\n", os.Args[0])
	fmt.Printf("  %s stats [--store=NAME] [--database=PATH]\n", os.Args[0])
	fmt.Printf("\nParameters:\n")
	fmt.Printf("  --folder      : Path to folder containing images to index\n")
	fmt.Printf("  --image       : Path to query image for search\n")
	fmt.Printf("  --store       : Record store backend: sqlite, badger, redis or memory (default: sqlite)\n")
	fmt.Printf("  --database    : Path to the store's data file or directory (default: %s)\n", GetDefaultDatabasePath())
	fmt.Printf("  --redis-addr  : Redis address for --store=redis (default: localhost:6379)\n")
	fmt.Printf("  --force       : Re-index files that already have a record\n")
	fmt.Printf("  --threshold   : Minimum combined similarity for search results (0.0-1.0)\n")
	fmt.Printf("  --limit       : Maximum number of search results (0 = all)\n")
	fmt.Printf("  --offset      : Number of ranked results to skip\n")
	fmt.Printf("  --debug       : Enable debug logging\n")
	fmt.Printf("\nEngine tunables (bins, grid size, weights, ...) are read from\n")
	fmt.Printf("IMAGESIM_* environment variables or a .env file.\n")
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  %s index --folder=/path/to/images --force\n", os.Args[0])
	fmt.Printf("  %s search --image=/path/to/query.jpg --threshold=0.85 --limit=10\n", os.Args[0])
}

// ParseThreshold parses and validates a threshold flag value.
func ParseThreshold(thresholdStr string) (float64, error) {
	parsed, err := strconv.ParseFloat(thresholdStr, 64)
	if err != nil || parsed < 0 || parsed > 1 {
		return 0, fmt.Errorf("invalid threshold value %q: want a number in [0,1]", thresholdStr)
	}
	return parsed, nil
}

// ParseNonNegativeInt parses a count-style flag such as --limit or --offset.
func ParseNonNegativeInt(flagName, value string) (int, error) {
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return 0, fmt.Errorf("invalid %s value %q: want a non-negative integer", flagName, value)
	}
	return parsed, nil
}

// IsImageFile reports whether the path carries a decodable image extension.
func IsImageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".tif", ".tiff":
		return true
	default:
		return false
	}
}

// CollectImageFiles walks root and returns every decodable image file in
// lexical order. Unreadable directory entries are skipped, not fatal.
func CollectImageFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && IsImageFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return files, nil
}
