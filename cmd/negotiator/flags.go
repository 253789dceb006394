package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/KaioH3/negotiation-agent/internal/negotiation"
)

// quantityFlag collects repeatable CODE=N overrides.
type quantityFlag map[string]int

func (q *quantityFlag) String() string {
	if q == nil || len(*q) == 0 {
		return ""
	}
	var pairs []string
	for code, units := range *q {
		pairs = append(pairs, fmt.Sprintf("%s=%d", code, units))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ", ")
}

func (q *quantityFlag) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected CODE=N, got %q", value)
	}
	code := strings.ToUpper(strings.TrimSpace(parts[0]))
	if code == "" {
		return fmt.Errorf("product code is empty in %q", value)
	}
	units, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(parts[1]), ",", ""))
	if err != nil {
		return fmt.Errorf("units for %s: %w", code, err)
	}
	if *q == nil {
		*q = quantityFlag{}
	}
	(*q)[code] = units
	return nil
}

// buildRequest merges the quantities file with command-line overrides, the
// flags winning.
func buildRequest(quantitiesFile string, overrides quantityFlag, note string) (negotiation.Request, error) {
	req := negotiation.Request{Note: strings.TrimSpace(note)}
	if path := strings.TrimSpace(quantitiesFile); path != "" {
		fileQuantities, err := readQuantitiesFile(path)
		if err != nil {
			return req, err
		}
		req.Quantities = fileQuantities
	}
	if len(overrides) > 0 {
		if req.Quantities == nil {
			req.Quantities = map[string]int{}
		}
		for code, units := range overrides {
			req.Quantities[code] = units
		}
	}
	return req, nil
}

func readQuantitiesFile(path string) (map[string]int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open quantities file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, expected a file", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quantities file %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("quantities file %s is empty", path)
	}
	var raw map[string]int
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse quantities file %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	quantities := make(map[string]int, len(raw))
	for code, units := range raw {
		quantities[strings.ToUpper(strings.TrimSpace(code))] = units
	}
	return quantities, nil
}
