package httputil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptionalID_UnmarshalJSON(t *testing.T) {
	type payload struct {
		ParentID OptionalID `json:"parent_id"`
	}

	tests := []struct {
		name        string
		body        string
		wantPresent bool
		wantTarget  string // "" means root
	}{
		{name: "absent", body: `{}`, wantPresent: false},
		{name: "null", body: `{"parent_id": null}`, wantPresent: true},
		{name: "empty string", body: `{"parent_id": ""}`, wantPresent: true},
		{name: "blank string", body: `{"parent_id": "  "}`, wantPresent: true},
		{name: "value", body: `{"parent_id": "abc"}`, wantPresent: true, wantTarget: "abc"},
		{name: "padded value", body: `{"parent_id": " abc "}`, wantPresent: true, wantTarget: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p payload
			require.NoError(t, json.Unmarshal([]byte(tt.body), &p))
			require.Equal(t, tt.wantPresent, p.ParentID.Present)

			target := p.ParentID.Target()
			if tt.wantTarget == "" {
				require.Nil(t, target)
				return
			}
			require.NotNil(t, target)
			require.Equal(t, tt.wantTarget, *target)
		})
	}
}

func TestOptionalID_RejectsNonString(t *testing.T) {
	var o OptionalID
	require.Error(t, json.Unmarshal([]byte(`42`), &o))
	require.False(t, o.Present)
}

func TestOptionalID_Constructors(t *testing.T) {
	require.Equal(t, "f1", *MoveTo("f1").Target())
	require.True(t, MoveToRoot().Present)
	require.Nil(t, MoveToRoot().Target())
}
