package key

import (
	"encoding/json"
	"fmt"
)

type jsonKey struct {
	KeyType Type   `json:"keyType"`
	Bytes   string `json:"bytes"`
}

func (k Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(&jsonKey{
		KeyType: k.keyType,
		Bytes:   k.Hex(),
	})
}

func (k *Key) UnmarshalJSON(b []byte) error {
	var jk jsonKey
	if err := json.Unmarshal(b, &jk); err != nil {
		return fmt.Errorf("unmarshaling key JSON: %w", err)
	}
	parsed, err := ParseHex(jk.KeyType, jk.Bytes)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// UnmarshalKey deserializes a Key from JSON.
func UnmarshalKey(message json.RawMessage) (Key, error) {
	var k Key
	if err := k.UnmarshalJSON(message); err != nil {
		return Key{}, err
	}
	return k, nil
}
