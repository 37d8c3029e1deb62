package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTable(t *testing.T) {
	tests := []struct {
		root     string
		wantData string
		wantTram string
	}{
		{"", "tramcast/ota/data", "villamos"},
		{"budapest", "budapest/tramcast/ota/data", "budapest/villamos"},
		{"/budapest/dev/", "budapest/dev/tramcast/ota/data", "budapest/dev/villamos"},
	}

	for _, tt := range tests {
		t.Run(tt.root, func(t *testing.T) {
			table, err := NewTable(tt.root)
			require.NoError(t, err)
			assert.Equal(t, tt.wantData, table.OTAData)
			assert.Equal(t, tt.wantTram, table.Tram)
		})
	}
}

func TestNewTableRejectsWildcards(t *testing.T) {
	_, err := NewTable("devices/+")
	assert.Error(t, err)

	_, err = NewTable("#")
	assert.Error(t, err)
}

func TestSubscriptions(t *testing.T) {
	table, err := NewTable("")
	require.NoError(t, err)

	assert.Equal(t, []string{Tram, Metro, OTAData, OTAConfirm, Rollback}, table.Subscriptions())
	assert.NotContains(t, table.Subscriptions(), OTAResult)
	assert.Equal(t, []string{Tram, Metro}, table.StatusTopics())
}
