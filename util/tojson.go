package util

import (
	"bytes"
	"encoding/json"
	"fmt"
)

func ToJson(value interface{}) string {
	buf, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("<failed to marshal to json: %v>", err)
	}
	return string(buf)
}

func ToJsonPretty(value interface{}) string {
	buf, err := json.MarshalIndent(value, "", "    ")
	if err != nil {
		return fmt.Sprintf("<failed to marshal to json: %v>", err)
	}
	return string(buf)
}

// DecodeJson decodes buf into value keeping numbers as json.Number so
// signature IDs and counters survive without float rounding.
func DecodeJson(buf []byte, value interface{}) error {
	decoder := json.NewDecoder(bytes.NewReader(buf))
	decoder.UseNumber()
	return decoder.Decode(value)
}
