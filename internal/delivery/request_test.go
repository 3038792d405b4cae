package delivery

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantString  string
		wantNumeric bool
		wantZero    bool
		wantErr     bool
	}{
		{name: "integer", input: `1001`, wantString: "1001", wantNumeric: true},
		{name: "large integer", input: `9007199254740993`, wantString: "9007199254740993", wantNumeric: true},
		{name: "string", input: `"WEB-42"`, wantString: "WEB-42"},
		{name: "numeric string", input: `"1001"`, wantString: "1001"},
		{name: "null", input: `null`, wantZero: true},
		{name: "fraction", input: `10.5`, wantErr: true},
		{name: "bool", input: `true`, wantErr: true},
		{name: "object", input: `{"id":1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id OrderID
			err := json.Unmarshal([]byte(tt.input), &id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantString, id.String())
			assert.Equal(t, tt.wantNumeric, id.IsNumeric())
			assert.Equal(t, tt.wantZero, id.IsZero())
		})
	}
}

func TestOrderID_MarshalKeepsForm(t *testing.T) {
	b, err := json.Marshal(struct {
		A OrderID `json:"a"`
		B OrderID `json:"b"`
		C OrderID `json:"c"`
	}{NumericOrderID(1001), StringOrderID("1001"), OrderID{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1001,"b":"1001","c":null}`, string(b))
}

func TestValidateRequest(t *testing.T) {
	valid := func() *Request {
		return &Request{
			OrderID:   NumericOrderID(1),
			Recipient: "Steve",
			Commands:  []string{"say hi"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(r *Request)
		wantErr bool
	}{
		{"valid", func(*Request) {}, false},
		{"zero order id is valid", func(r *Request) { r.OrderID = NumericOrderID(0) }, false},
		{"missing order id", func(r *Request) { r.OrderID = OrderID{} }, true},
		{"blank string order id", func(r *Request) { r.OrderID = StringOrderID("  ") }, true},
		{"missing recipient", func(r *Request) { r.Recipient = "" }, true},
		{"blank recipient", func(r *Request) { r.Recipient = "   " }, true},
		{"nil commands", func(r *Request) { r.Commands = nil }, true},
		{"empty commands", func(r *Request) { r.Commands = []string{} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)

			err := ValidateRequest(req)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidRequest), "got %v", err)
		})
	}

	assert.ErrorIs(t, ValidateRequest(nil), ErrInvalidRequest)
}

func TestRequest_DecodeFromStorePayload(t *testing.T) {
	var req Request
	err := json.Unmarshal([]byte(`{"orderId":1001,"minecraftUsername":"Steve","commands":["give {player} diamond 3"]}`), &req)
	require.NoError(t, err)
	require.NoError(t, ValidateRequest(&req))

	assert.Equal(t, "1001", req.OrderID.String())
	assert.Equal(t, "Steve", req.Recipient)
	assert.Equal(t, []string{"give {player} diamond 3"}, req.Commands)
}

func TestResult_JSONShape(t *testing.T) {
	r := newResult(Request{OrderID: NumericOrderID(7), Recipient: "Alex"})
	r.finish()

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"orderId": 7,
		"minecraftUsername": "Alex",
		"success": true,
		"executedCommands": [],
		"failedCommands": [],
		"queuedCommands": []
	}`, string(b))
}
