// Package server contains misc server utilities.
package server

import (
	"encoding/json"
	"fmt"
	"go/types"
	"net/http"
	"strconv"
)

// HumanPayload is a struct containing the basic types and their encoded
// representations.  Consumers set T to the relevant types.BasicKind and
// populate the matching field.
type HumanPayload struct {
	// T holds the type of data actually contained in the payload
	T types.BasicKind

	// Int holds an int
	Int int

	// Bool holds a bool
	Bool bool

	// String holds a string
	String string
}

// EncodeAndRespond converts the data to JSON of {<typefield>: value} and
// writes it to w.
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	var (
		body []byte
		err  error
	)
	switch hp.T {
	case types.Int:
		body, err = json.Marshal(IntT{Int: hp.Int})
	case types.Bool:
		body, err = json.Marshal(BoolT{Bool: hp.Bool})
	case types.String:
		body, err = json.Marshal(StrT{Str: hp.String})
	default:
		err = fmt.Errorf("server: unknown payload kind %s", strconv.Itoa(int(hp.T)))
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// IntT is a struct with a single int field for JSON input/output.
type IntT struct {
	Int int `json:"int"`
}

// StrT is a struct with a single str field for JSON input/output.
type StrT struct {
	Str string `json:"str"`
}

// BoolT is a struct with a single bool field for JSON input/output.
type BoolT struct {
	Bool bool `json:"bool"`
}
