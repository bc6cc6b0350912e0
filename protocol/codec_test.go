package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeStrictReadingRequest(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{
			name:    "valid",
			payload: `{"region":"London","usage":100.5}`,
		},
		{
			name:    "case insensitive field names",
			payload: `{"Region":"London","USAGE":100.5}`,
		},
		{
			name:    "unknown field rejected",
			payload: `{"region":"London","usage":1,"extra":true}`,
			wantErr: true,
		},
		{
			name:    "registration payload rejected",
			payload: `{"name":"Meter One","address":"1 High St"}`,
			wantErr: true,
		},
		{
			name:    "missing region rejected",
			payload: `{"usage":1}`,
			wantErr: true,
		},
		{
			name:    "negative usage rejected",
			payload: `{"region":"London","usage":-1}`,
			wantErr: true,
		},
		{
			name:    "not json",
			payload: `hello`,
			wantErr: true,
		},
		{
			name:    "trailing data rejected",
			payload: `{"region":"London","usage":1}{"region":"London","usage":2}`,
			wantErr: true,
		},
		{
			name:    "wrong type rejected",
			payload: `{"region":"London","usage":"lots"}`,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var req ReadingRequest
			err := DecodeStrict([]byte(tc.payload), &req)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "London", req.Region)
			require.Equal(t, 100.5, req.Usage)
		})
	}
}

func TestDecodeStrictRegistrationRequest(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{
			name:    "valid",
			payload: `{"name":"Meter One","address":"1 High St"}`,
		},
		{
			name:    "case insensitive",
			payload: `{"Name":"Meter One","Address":"1 High St"}`,
		},
		{
			name:    "reading payload rejected",
			payload: `{"region":"London","usage":1}`,
			wantErr: true,
		},
		{
			name:    "missing name rejected",
			payload: `{"address":"1 High St"}`,
			wantErr: true,
		},
		{
			name:    "missing address rejected",
			payload: `{"name":"Meter One"}`,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var req RegistrationRequest
			err := DecodeStrict([]byte(tc.payload), &req)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "Meter One", req.Name)
			require.Equal(t, "1 High St", req.Address)
		})
	}
}

func TestEncodeReadingResponse(t *testing.T) {
	data, err := Encode(ReadingResponse{Region: "London", Usage: 100, Total: 25})
	require.NoError(t, err)
	require.JSONEq(t, `{"region":"London","usage":100,"total":25}`, string(data))
}

func TestEncodeGridStatusEvent(t *testing.T) {
	data, err := Encode(GridStatusEvent{Status: GridStatusDown})
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"down"}`, string(data))
}
