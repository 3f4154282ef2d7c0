package dataflows

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// symbolPattern accepts exchange tickers such as BRK-B, ABBN.SW, 7203.T,
// EURUSD=X and ^GSPC.
var symbolPattern = regexp.MustCompile(`^\^?[A-Za-z0-9][A-Za-z0-9.\-=]{0,15}$`)

// ValidateSymbol rejects symbols that cannot be sent to a provider.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("invalid symbol %q", symbol)
	}
	return nil
}

// SaveDataToFile writes data as indented JSON. The file is replaced
// atomically so a reader never sees a partial snapshot.
func SaveDataToFile(data interface{}, filePath string) error {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filePath, err)
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filePath)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filePath)
}

// LoadDataFromFile decodes the JSON file at filePath into result.
func LoadDataFromFile(filePath string, result interface{}) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("decode %s: %w", filePath, err)
	}
	return nil
}
