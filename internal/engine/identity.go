package engine

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/pkg/core"
)

// IdentityMode selects how record ids are derived from source rows.
type IdentityMode string

// Identity modes.
const (
	// IdentityRandom assigns a fresh id per row per run.
	IdentityRandom IdentityMode = "random"
	// IdentityColumn derives the id from a business key column.
	IdentityColumn IdentityMode = "column"
	// IdentityContent derives the id from the ordered row content.
	IdentityContent IdentityMode = "content"
)

// recordNamespace scopes name-based record ids.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:oigen:record"))

// ParseIdentityMode parses an identity mode name. Empty means random.
func ParseIdentityMode(s string) (IdentityMode, error) {
	switch m := IdentityMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return IdentityRandom, nil
	case IdentityRandom, IdentityColumn, IdentityContent:
		return m, nil
	default:
		return "", fmt.Errorf("unknown identity mode %q (want random, column or content)", s)
	}
}

// recordID returns the id for one row.
func (m IdentityMode) recordID(row core.RawRow, keyColumn string) (string, error) {
	switch m {
	case IdentityColumn:
		key := strings.TrimSpace(row.Value(keyColumn))
		if key == "" {
			return "", fmt.Errorf("key column %q is empty", keyColumn)
		}
		return uuid.NewSHA1(recordNamespace, []byte("key\x00"+key)).String(), nil
	case IdentityContent:
		var sb strings.Builder
		sb.WriteString("row")
		row.Each(func(column, value string) {
			sb.WriteByte(0)
			sb.WriteString(column)
			sb.WriteByte(0x1f)
			sb.WriteString(value)
		})
		return uuid.NewSHA1(recordNamespace, []byte(sb.String())).String(), nil
	default:
		return uuid.NewString(), nil
	}
}
