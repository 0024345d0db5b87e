package internal

import (
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// InspectRow describes one raw record of the database, for the debug endpoint.
type InspectRow struct {
	Key       string `json:"key"`
	Namespace string `json:"namespace"`
	EntityID  string `json:"entityId"`
	Seq       string `json:"seq,omitempty"`
	Detail    string `json:"detail"`
}

type RowMapper func(key string, val []byte) InspectRow

// Inspect lists at most limit records whose key starts with prefix.
// It only reads, so it is safe against a live database.
func Inspect(db *badger.DB, prefix string, limit int, mapper RowMapper) ([]InspectRow, error) {
	if mapper == nil {
		mapper = DefaultMapper
	}
	rows := make([]InspectRow, 0)
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)) && len(rows) < limit; it.Next() {
			item := it.Item()
			if err := item.Value(func(val []byte) error {
				rows = append(rows, mapper(string(item.Key()), val))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return rows, err
}

// DefaultMapper understands the key layouts of the repositories:
// "user:{id}", "channel:{id}", "conversation:{id}" and "msg:{kind}:{id}:{seq}".
func DefaultMapper(key string, val []byte) InspectRow {
	row := InspectRow{
		Key:       key,
		Namespace: "raw",
		EntityID:  "--------",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}
	namespace, rest, ok := strings.Cut(key, ":")
	if !ok {
		return row
	}
	row.Namespace = namespace
	row.EntityID = rest
	if namespace == "msg" {
		if i := strings.LastIndex(rest, ":"); i > 0 {
			row.EntityID = rest[:i]
			row.Seq = strings.TrimLeft(rest[i+1:], "0")
		}
	}
	return row
}

// detailFields are tried in order to summarize a decoded record.
var detailFields = []string{"text", "name", "display_name", "last_message"}

// RecordMapper decodes the protobuf Struct records written by the
// repositories and shows their most telling field.
func RecordMapper(key string, val []byte) InspectRow {
	row := DefaultMapper(key, val)
	var s structpb.Struct
	if err := proto.Unmarshal(val, &s); err != nil {
		return row
	}
	fields := s.GetFields()
	for _, name := range detailFields {
		if v, ok := fields[name]; ok && v.GetStringValue() != "" {
			row.Detail = v.GetStringValue()
			break
		}
	}
	return row
}
