// Package seed loads newline-delimited JSON record dumps into a storage
// backend. Each line is an envelope:
//
//	{"collection": "network_log", "record": {"timestamp": 1, ...}}
//
// Files ending in ".zst" are zstd-decompressed.
package seed

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fidde/log_dashboard/internal/storage"
	"github.com/fidde/log_dashboard/pkg/models"
	"github.com/klauspost/compress/zstd"
)

const maxLine = 4 * 1024 * 1024

// Load reads the file at path into w and returns the number of records
// written.
func Load(ctx context.Context, w storage.Writer, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening seed file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return 0, fmt.Errorf("creating zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	return Read(ctx, w, r)
}

// Read writes every envelope in r to w. Blank lines are skipped. On error
// it returns the number of records written before the failing line.
func Read(ctx context.Context, w storage.Writer, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	loaded := 0
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return loaded, err
		}
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		collectionName, rec, err := parseLine([]byte(raw))
		if err != nil {
			return loaded, fmt.Errorf("seed line %d: %w", line, err)
		}
		if _, err := w.Insert(ctx, collectionName, rec); err != nil {
			return loaded, fmt.Errorf("seed line %d: %w", line, err)
		}
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return loaded, fmt.Errorf("reading seed file: %w", err)
	}
	return loaded, nil
}

func parseLine(data []byte) (string, *models.Record, error) {
	v, err := models.ParseJSON(data)
	if err != nil {
		return "", nil, err
	}
	if v.Kind() != models.KindObject {
		return "", nil, fmt.Errorf("expected object, got %s", v.Kind())
	}

	var (
		collectionName string
		body           models.Value
		haveBody       bool
	)
	for _, f := range v.Fields() {
		switch f.Name {
		case "collection":
			collectionName, _ = f.Value.AsString()
		case "record":
			body, haveBody = f.Value, true
		}
	}
	if collectionName == "" {
		return "", nil, fmt.Errorf("missing collection name")
	}
	if !haveBody {
		return "", nil, fmt.Errorf("missing record")
	}

	rec, err := models.RecordFromValue(body)
	if err != nil {
		return "", nil, err
	}
	return collectionName, rec, nil
}
