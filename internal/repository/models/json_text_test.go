package models

import (
	"database/sql/driver"
	"testing"

	"exam-engine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONText_Value(t *testing.T) {
	tests := []struct {
		name    string
		j       JSONText[domain.AIFeedback]
		wantVal driver.Value
	}{
		{
			name:    "invalid value is NULL",
			j:       JSONText[domain.AIFeedback]{},
			wantVal: nil,
		},
		{
			name:    "valid value is a JSON string",
			j:       NewJSONText(domain.AIFeedback{Feedback: "good"}),
			wantVal: `{"feedback":"good"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.j.Value()
			require.NoError(t, err)
			assert.Equal(t, tt.wantVal, got)
		})
	}
}

func TestJSONText_Scan(t *testing.T) {
	tests := []struct {
		name      string
		input     interface{}
		wantValid bool
		wantData  map[int64]domain.SectionProgress
		wantErr   bool
	}{
		{name: "nil", input: nil},
		{name: "empty bytes", input: []byte{}},
		{name: "json null", input: "null"},
		{
			name:      "string",
			input:     `{"12":{"status":"COMPLETED","correctCount":3,"totalQuestions":4}}`,
			wantValid: true,
			wantData: map[int64]domain.SectionProgress{
				12: {Status: domain.SectionCompleted, CorrectCount: 3, TotalQuestions: 4},
			},
		},
		{
			name:      "bytes",
			input:     []byte(`{}`),
			wantValid: true,
			wantData:  map[int64]domain.SectionProgress{},
		},
		{name: "unsupported type", input: 42, wantErr: true},
		{name: "malformed", input: "{", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var j JSONText[map[int64]domain.SectionProgress]
			err := j.Scan(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, j.Valid)
			if tt.wantValid {
				assert.Equal(t, tt.wantData, j.Data)
			}
		})
	}
}

func TestJSONText_ScanResetsPreviousValue(t *testing.T) {
	j := NewJSONText(domain.AIFeedback{Feedback: "old"})
	require.NoError(t, j.Scan(nil))
	assert.False(t, j.Valid)
	assert.Empty(t, j.Data.Feedback)
}
