package redis

import (
	"fmt"
	"strconv"

	"github.com/goodtune/sitebudget/internal/storage"
)

// parseDocument converts an MGET reply of [document, revision] into a Document
func parseDocument(values []interface{}) (*storage.Document, error) {
	if len(values) != 2 || values[0] == nil {
		return nil, storage.ErrNotFound
	}

	data, ok := values[0].(string)
	if !ok {
		return nil, fmt.Errorf("unexpected document type %T", values[0])
	}

	rev, err := parseRevision(values[1])
	if err != nil {
		return nil, err
	}

	return &storage.Document{Data: []byte(data), Revision: rev}, nil
}

// parseRevision reads the revision value; a document without one is revision 1
func parseRevision(value interface{}) (uint64, error) {
	if value == nil {
		return 1, nil
	}
	raw, ok := value.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected revision type %T", value)
	}
	rev, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse revision: %w", err)
	}
	return rev, nil
}
