// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package recorder

import (
	"encoding/csv"
	"fmt"
	"os"
)

// ReadFile reads a session file written by Flush, decompressing by
// extension. The first record is the header.
func ReadFile(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	plain, err := decompressor(path, file)
	if err != nil {
		return nil, fmt.Errorf("recorder: %s: %w", path, err)
	}
	defer plain.Close()

	reader := csv.NewReader(plain)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("recorder: reading %s: %w", path, err)
	}
	return records, nil
}
