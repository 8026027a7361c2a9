package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time checks that JSONB column types implement both sql.Scanner
// and driver.Valuer.
var (
	_ driver.Valuer = OrgSettings{}
)

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (s *OrgSettings) Scan(value interface{}) error {
	if value == nil {
		*s = OrgSettings{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("org settings: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, s)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (s OrgSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}
