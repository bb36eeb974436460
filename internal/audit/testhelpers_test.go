package audit

import (
	"bufio"
	"os"
	"strings"
)

func touch(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return f.Close()
}

// corruptLine flips a character in the event field of the given line number
// (0-indexed) to produce a self_hash mismatch without breaking JSON parsing.
func corruptLine(path string, lineNo int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	lines[lineNo] = strings.Replace(lines[lineNo], `"event":"event"`, `"event":"tampered"`, 1)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, l := range lines {
		if _, err := w.WriteString(l + "\n"); err != nil {
			return err
		}
	}
	return w.Flush()
}
