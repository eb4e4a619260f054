package proxypool

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadFile reads a proxy list: one entry per line, blank lines and
// lines starting with '#' are ignored.
func LoadFile(path string) ([]Proxy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open proxy list: %w", err)
	}
	defer f.Close()

	proxies, err := ReadList(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return proxies, nil
}

// ReadList parses a proxy list from r. See LoadFile for the format.
func ReadList(r io.Reader) ([]Proxy, error) {
	var proxies []Proxy
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, err := Parse(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		proxies = append(proxies, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read proxy list: %w", err)
	}
	return proxies, nil
}

// ParseAll parses inline proxy entries, e.g. from a config file.
func ParseAll(entries []string) ([]Proxy, error) {
	proxies := make([]Proxy, 0, len(entries))
	for i, e := range entries {
		p, err := Parse(e)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		proxies = append(proxies, p)
	}
	return proxies, nil
}
