package block

import (
	"encoding/json"
	"fmt"
)

// DataTypeCall is the only data type that carries decoded data.
const DataTypeCall = "call"

// TxData is the decoded "data" payload of a transaction. The set of
// implementations is closed; today only CallData exists. A nil TxData means
// the transaction carries no decoded data.
type TxData interface {
	DataType() string
}

// CallData invokes a contract method.
type CallData struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

func (*CallData) DataType() string { return DataTypeCall }

// DecodeCallData decodes data for dataType. Only "call" yields a value; any
// other type, including an empty one, yields nil.
func DecodeCallData(dataType string, data json.RawMessage) (TxData, error) {
	switch dataType {
	case DataTypeCall:
		if len(data) == 0 || string(data) == "null" {
			return nil, missingField("data")
		}
		var f fields
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, invalidField("data", err)
		}
		method, ok, err := f.text("method")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, missingField("data.method")
		}
		call := &CallData{Method: method, Params: map[string]any{}}
		if f.has("params") {
			if err := json.Unmarshal(f["params"], &call.Params); err != nil {
				return nil, invalidField("data.params", fmt.Errorf("params must be an object: %w", err))
			}
		}
		return call, nil
	default:
		return nil, nil
	}
}
