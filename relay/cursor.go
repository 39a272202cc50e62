// Package relay implements cursor-based pagination wrappers: opaque cursors,
// global object identifiers, and the connection/edge/pageInfo shapes.
package relay

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCursor is returned when an after/before argument cannot be
// decoded. It maps to a BAD_USER_INPUT error at the GraphQL layer.
var ErrInvalidCursor = errors.New("invalid cursor")

// ErrInvalidGlobalID is returned when a node ID cannot be decoded.
var ErrInvalidGlobalID = errors.New("invalid global id")

const cursorPrefix = "offsetcursor:"

// EncodeCursor encodes a zero-based position in the filtered, ordered result
// set as an opaque cursor.
func EncodeCursor(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(offset)))
}

// DecodeCursor decodes a cursor produced by EncodeCursor.
func DecodeCursor(s string) (int, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCursor, s)
	}
	rest, ok := strings.CutPrefix(string(raw), cursorPrefix)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCursor, s)
	}
	offset, err := strconv.Atoi(rest)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCursor, s)
	}
	return offset, nil
}

// EncodeGlobalID builds the globally unique ID exposed on Node types. The raw
// database identifier is prefixed with the GraphQL type name.
func EncodeGlobalID(typeName, rawID string) string {
	return base64.StdEncoding.EncodeToString([]byte(typeName + ":" + rawID))
}

// DecodeGlobalID splits a global ID back into type name and raw identifier.
// Plain (unencoded) IDs are rejected so clients cannot bypass the opaque
// format.
func DecodeGlobalID(s string) (typeName, rawID string, err error) {
	raw, decErr := base64.StdEncoding.DecodeString(s)
	if decErr != nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidGlobalID, s)
	}
	typeName, rawID, ok := strings.Cut(string(raw), ":")
	if !ok || typeName == "" || rawID == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidGlobalID, s)
	}
	return typeName, rawID, nil
}
