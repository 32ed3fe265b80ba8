// Package output renders the JSON envelope every command prints on stdout.
package output

import "encoding/json"

type Result struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Error   *string     `json:"error"`
}

func Success(data interface{}) string {
	return render(Result{Success: true, Data: data})
}

func Error(err error) string {
	return Failure(err, nil)
}

// Failure reports err while still carrying whatever partial data exists,
// such as the report of an interrupted batch.
func Failure(err error, data interface{}) string {
	msg := err.Error()
	return render(Result{Success: false, Data: data, Error: &msg})
}

func render(r Result) string {
	b, err := json.Marshal(r)
	if err != nil {
		msg := "failed to encode result: " + err.Error()
		b, _ = json.Marshal(Result{Error: &msg})
	}
	return string(b)
}
