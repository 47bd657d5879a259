package scan

import (
	"errors"
	"fmt"
)

var errMalformedRecord = errors.New("malformed pax record")

func errInvalidRecord(key, value string) error {
	return fmt.Errorf("invalid value %q for pax record %q", value, key)
}
