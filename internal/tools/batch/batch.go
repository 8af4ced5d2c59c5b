package batch

import (
	"encoding/json"
	"fmt"
)

// Result represents the result of a single position in a batch
type Result struct {
	Position int    `json:"position"`
	Status   string `json:"status"` // "success" or "error"
	Result   string `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BatchResult represents the aggregated results of a batch operation
type BatchResult struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// ParsePositions parses a parameter that can be either a single number or an
// array of numbers. JSON numbers arrive as float64; values must be whole.
func ParsePositions(param interface{}, paramName string) ([]int, error) {
	if param == nil {
		return nil, fmt.Errorf("%s is required", paramName)
	}

	var result []int

	switch v := param.(type) {
	case float64:
		pos, err := toPosition(v)
		if err != nil {
			return nil, fmt.Errorf("%s %v", paramName, err)
		}
		result = []int{pos}
	case []interface{}:
		if len(v) == 0 {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		for i, item := range v {
			num, ok := item.(float64)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a number", paramName, i)
			}
			pos, err := toPosition(num)
			if err != nil {
				return nil, fmt.Errorf("%s[%d] %v", paramName, i, err)
			}
			result = append(result, pos)
		}
	default:
		return nil, fmt.Errorf("%s must be a number or array of numbers", paramName)
	}

	return result, nil
}

func toPosition(v float64) (int, error) {
	pos := int(v)
	if float64(pos) != v {
		return 0, fmt.Errorf("must be a whole number, got %v", v)
	}
	return pos, nil
}

// FormatResults creates a formatted JSON string from batch results
func FormatResults(results []Result) string {
	br := BatchResult{
		Total:   len(results),
		Results: results,
	}

	for _, r := range results {
		if r.Status == "success" {
			br.Successful++
		} else {
			br.Failed++
		}
	}

	jsonBytes, _ := json.MarshalIndent(br, "", "  ")
	return string(jsonBytes)
}

// NewSuccessResult creates a success result
func NewSuccessResult(position int, message string) Result {
	return Result{
		Position: position,
		Status:   "success",
		Result:   message,
	}
}

// NewErrorResult creates an error result
func NewErrorResult(position int, err error) Result {
	return Result{
		Position: position,
		Status:   "error",
		Error:    err.Error(),
	}
}
