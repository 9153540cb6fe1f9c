package cos

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MustMarshal panics on encode failure, same convention the teacher uses
// for encoding catalog rows right before handing them to buntdb.
func MustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
