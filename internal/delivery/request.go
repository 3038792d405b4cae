// Package delivery turns a webstore delivery request into per-command
// outcomes on the host.
package delivery

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest indicates a required request field is missing or empty.
var ErrInvalidRequest = errors.New("invalid delivery request")

// OrderID is a webstore order identifier. Stores send either a JSON number
// or a string; the original form is kept so it round-trips unchanged.
type OrderID struct {
	raw     string
	numeric bool
}

// StringOrderID returns a string order id.
func StringOrderID(s string) OrderID { return OrderID{raw: s} }

// NumericOrderID returns a numeric order id.
func NumericOrderID(n int64) OrderID {
	return OrderID{raw: fmt.Sprintf("%d", n), numeric: true}
}

func (id OrderID) String() string { return id.raw }

// IsZero reports whether the id was absent or null.
func (id OrderID) IsZero() bool { return id.raw == "" && !id.numeric }

// IsNumeric reports whether the id was sent as a JSON number.
func (id OrderID) IsNumeric() bool { return id.numeric }

func (id OrderID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	if id.numeric {
		return []byte(id.raw), nil
	}
	return json.Marshal(id.raw)
}

func (id *OrderID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = OrderID{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = OrderID{raw: s}
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("order id must be a number or string: %w", err)
	}
	if _, err := n.Int64(); err != nil {
		return fmt.Errorf("order id must be an integer: %s", n)
	}
	*id = OrderID{raw: n.String(), numeric: true}
	return nil
}

// Request is an inbound delivery.
type Request struct {
	OrderID   OrderID  `json:"orderId"`
	Recipient string   `json:"minecraftUsername"`
	Commands  []string `json:"commands"`
}

// ValidateRequest checks that every required field is present and non-empty.
func ValidateRequest(req *Request) error {
	if req == nil {
		return fmt.Errorf("%w: empty request", ErrInvalidRequest)
	}

	var missing []string
	if req.OrderID.IsZero() || (!req.OrderID.IsNumeric() && strings.TrimSpace(req.OrderID.String()) == "") {
		missing = append(missing, "orderId")
	}
	if strings.TrimSpace(req.Recipient) == "" {
		missing = append(missing, "minecraftUsername")
	}
	if len(req.Commands) == 0 {
		missing = append(missing, "commands")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}
