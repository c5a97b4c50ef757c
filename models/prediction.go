package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// MaxIPCPredictions caps how many suggestions we keep per FIR.
const MaxIPCPredictions = 3

// IPCPrediction is one suggested Indian Penal Code section for a case
// description, as normalized from the prediction service response.
type IPCPrediction struct {
	Section    string  `json:"section"`
	Offense    string  `json:"offense"`
	Punishment string  `json:"punishment"`
	Confidence float64 `json:"confidence"`
}

// IPCPredictionList is stored as a JSON column on both FIR tables.
type IPCPredictionList []IPCPrediction

func (l IPCPredictionList) Value() (driver.Value, error) {
	if l == nil {
		l = IPCPredictionList{}
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *IPCPredictionList) Scan(value interface{}) error {
	if value == nil {
		*l = IPCPredictionList{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into IPCPredictionList", value)
	}
	if len(data) == 0 {
		*l = IPCPredictionList{}
		return nil
	}
	if err := json.Unmarshal(data, l); err != nil {
		return errors.New("malformed ipc prediction json: " + err.Error())
	}
	return nil
}
