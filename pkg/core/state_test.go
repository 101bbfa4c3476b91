package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to RecordStatus
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusProcessing, StatusSuccess, true},
		{StatusProcessing, StatusFailed, true},
		{StatusSuccess, StatusReprocessed, true},
		{StatusFailed, StatusReprocessed, true},
		{StatusSuccess, StatusProcessing, true},
		{StatusReprocessed, StatusProcessing, true},
		{StatusProcessing, StatusProcessing, true},
		{StatusPending, StatusSuccess, false},
		{StatusPending, StatusReprocessed, false},
		{StatusSuccess, StatusFailed, false},
		{StatusReprocessed, StatusSuccess, false},
		{StatusSuccess, StatusPending, false},
		{StatusSuccess, RecordStatus("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestRecordStatus_Valid(t *testing.T) {
	for _, s := range AllStatuses {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, RecordStatus("archived").Valid())
}

func TestNode_Identifier(t *testing.T) {
	n := &Node{Fields: []Field{{Name: "location", Value: " Enterprise:Reports "}, {Name: "title", Value: "  "}}}
	assert.Equal(t, "Enterprise:Reports", n.Identifier(), "blank title falls back to location")

	n.Fields = append(n.Fields, Field{Name: "title", Value: "ignored"})
	assert.Equal(t, "Enterprise:Reports", n.Identifier(), "only the first title field counts")

	n = &Node{Fields: []Field{{Name: "title", Value: "Budget 2024"}}}
	assert.Equal(t, "Budget 2024", n.Identifier())
}

func TestParseAction(t *testing.T) {
	assert.Equal(t, Action(""), ParseAction(" None "))
	assert.Equal(t, ActionAddVersion, ParseAction("AddVersion"))
	assert.True(t, ActionDelete.IsMinimal())
	assert.False(t, ActionUpdate.IsMinimal())
}
