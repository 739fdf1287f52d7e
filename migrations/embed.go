// Package migrations embeds the SQL schema migrations so the migrator binary
// ships with zero external file dependencies.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
)

//go:embed *.sql
var files embed.FS

// Migration filenames follow 001_name.up.sql / 001_name.down.sql.
var filenamePattern = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// FS returns the embedded migration filesystem for use with the iofs source
// driver.
func FS() fs.FS {
	return files
}

// List returns the embedded migration filenames in lexicographic (and
// therefore sequence) order.
func List() ([]string, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	var names []string

	for _, entry := range entries {
		if !entry.IsDir() && filenamePattern.MatchString(entry.Name()) {
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)

	return names, nil
}

// Validate checks the embedded set: every file matches the naming standard,
// every up has a down, and sequence numbers start at 1 with no gaps. A broken
// set fails the migrator at startup instead of halfway through a deploy.
func Validate() error {
	names, err := List()
	if err != nil {
		return err
	}

	if len(names) == 0 {
		return fmt.Errorf("no embedded migration files found")
	}

	type pair struct{ up, down bool }

	pairs := make(map[int]*pair)

	for _, name := range names {
		matches := filenamePattern.FindStringSubmatch(name)

		seq, err := strconv.Atoi(matches[1])
		if err != nil {
			return fmt.Errorf("invalid sequence in %s: %w", name, err)
		}

		if pairs[seq] == nil {
			pairs[seq] = &pair{}
		}

		if matches[3] == "up" {
			pairs[seq].up = true
		} else {
			pairs[seq].down = true
		}
	}

	sequences := make([]int, 0, len(pairs))
	for seq := range pairs {
		sequences = append(sequences, seq)
	}

	sort.Ints(sequences)

	for i, seq := range sequences {
		if seq != i+1 {
			return fmt.Errorf("gap in migration sequence: expected %03d, found %03d", i+1, seq)
		}

		if !pairs[seq].up {
			return fmt.Errorf("missing up migration for sequence %03d", seq)
		}

		if !pairs[seq].down {
			return fmt.Errorf("missing down migration for sequence %03d", seq)
		}
	}

	return nil
}

// MaxVersion returns the highest migration sequence number in the embedded set.
func MaxVersion() int {
	names, err := List()
	if err != nil {
		return 0
	}

	maxSeq := 0

	for _, name := range names {
		matches := filenamePattern.FindStringSubmatch(name)

		if seq, err := strconv.Atoi(matches[1]); err == nil && seq > maxSeq {
			maxSeq = seq
		}
	}

	return maxSeq
}
