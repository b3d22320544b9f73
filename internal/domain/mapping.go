package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// MappingTimestampLayout is the UTC timestamp form stored with each record
const MappingTimestampLayout = "2006-01-02T15:04:05.000000"

// MappingRecord records that a member was whitelisted under an in-game name
type MappingRecord struct {
	DiscordID     Snowflake `json:"discord_id"`
	MinecraftName string    `json:"minecraft_name"`
	Timestamp     string    `json:"timestamp"`

	// Raw is the entry as it was read from disk. When set it is written
	// back unchanged, so fields this program does not know survive.
	Raw json.RawMessage `json:"-"`
}

type mappingFields MappingRecord

// MarshalJSON writes Raw when present, otherwise the known fields
func (r MappingRecord) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	return json.Marshal(mappingFields(r))
}

// DecodeMappings reads a mapping file leniently. Every key counts as a
// record; an entry whose fields do not decode keeps its raw bytes and is
// reported in bad instead of failing the whole file.
func DecodeMappings(data []byte) (m Mappings, bad map[string]error, err error) {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil, err
	}
	m = make(Mappings, len(entries))
	for id, entry := range entries {
		rec := MappingRecord{DiscordID: Snowflake(id)}
		if err := json.Unmarshal(entry, (*mappingFields)(&rec)); err != nil {
			if bad == nil {
				bad = make(map[string]error)
			}
			bad[id] = err
		}
		rec.Raw = append(json.RawMessage(nil), entry...)
		m[id] = rec
	}
	return m, bad, nil
}

// NewMappingRecord stamps a record with t in the stored layout
func NewMappingRecord(memberID, name string, t time.Time) MappingRecord {
	return MappingRecord{
		DiscordID:     Snowflake(memberID),
		MinecraftName: name,
		Timestamp:     t.UTC().Format(MappingTimestampLayout),
	}
}

// Mappings is the full member id -> record mapping
type Mappings map[string]MappingRecord

// Clone returns a shallow copy safe to mutate
func (m Mappings) Clone() Mappings {
	out := make(Mappings, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Snowflake is a platform id. It is written as a JSON number when numeric
// and accepted as either a number or a string.
type Snowflake string

func (s Snowflake) MarshalJSON() ([]byte, error) {
	if s.numeric() {
		return []byte(s), nil
	}
	return json.Marshal(string(s))
}

func (s *Snowflake) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Snowflake(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("snowflake: %w", err)
	}
	*s = Snowflake(num.String())
	return nil
}

func (s Snowflake) numeric() bool {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
