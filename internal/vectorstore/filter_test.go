package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestFilterValidate(t *testing.T) {
	tests := []struct {
		name    string
		filter  *Filter
		wantErr bool
	}{
		{name: "nil filter", filter: nil},
		{name: "empty filter", filter: &Filter{}},
		{name: "doc types only", filter: &Filter{DocTypes: []string{"report"}}},
		{name: "open year range", filter: &Filter{YearFrom: intPtr(2000)}},
		{name: "valid year range", filter: &Filter{YearFrom: intPtr(2000), YearTo: intPtr(2010)}},
		{name: "single year", filter: &Filter{YearFrom: intPtr(2005), YearTo: intPtr(2005)}},
		{name: "inverted year range", filter: &Filter{YearFrom: intPtr(2010), YearTo: intPtr(2000)}, wantErr: true},
		{name: "empty doc type", filter: &Filter{DocTypes: []string{""}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidFilter)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestFilterMatches(t *testing.T) {
	payload := map[string]any{
		FieldDocumentType: "report",
		FieldYear:         2005,
	}

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{name: "nil filter matches all", filter: nil, want: true},
		{name: "matching doc type", filter: &Filter{DocTypes: []string{"report"}}, want: true},
		{name: "doc type OR set", filter: &Filter{DocTypes: []string{"memo", "report"}}, want: true},
		{name: "non-matching doc type", filter: &Filter{DocTypes: []string{"memo"}}, want: false},
		{name: "year inside range", filter: &Filter{YearFrom: intPtr(2000), YearTo: intPtr(2010)}, want: true},
		{name: "year below range", filter: &Filter{YearFrom: intPtr(2006)}, want: false},
		{name: "year above range", filter: &Filter{YearTo: intPtr(2004)}, want: false},
		{name: "boundary inclusive", filter: &Filter{YearFrom: intPtr(2005), YearTo: intPtr(2005)}, want: true},
		{name: "combined type and year", filter: &Filter{DocTypes: []string{"report"}, YearFrom: intPtr(2005)}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(payload))
		})
	}

	t.Run("year filter rejects payload without year", func(t *testing.T) {
		f := &Filter{YearFrom: intPtr(2000)}
		assert.False(t, f.Matches(map[string]any{FieldDocumentType: "report"}))
	})
}
