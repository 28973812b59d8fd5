package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/derktes/pi-ir/pulse"
)

// createCodeFile creates path and its parent directories. An existing
// file is never overwritten.
func createCodeFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func writeCode(f *os.File, code pulse.Code) error {
	data, err := pulse.MarshalCode(code)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Close()
}

func readCodes(path string) ([]pulse.Code, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	codes, err := pulse.ParseCodes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return codes, nil
}

// codeName derives a library name from a code file path.
func codeName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
