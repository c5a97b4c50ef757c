package utils

import "encoding/json"

func MarshalToJSON[T any](obj T) (string, error) {
	b, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
