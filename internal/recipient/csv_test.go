package recipient

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailrun/mailrun/internal/domain/model"
)

func TestCSVSourceParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []model.Recipient
	}{
		{
			name:  "basic",
			input: "FirstName,Email\nAlice,alice@example.com\nBob,bob@example.com\n",
			want: []model.Recipient{
				{Email: "alice@example.com", FirstName: "Alice"},
				{Email: "bob@example.com", FirstName: "Bob"},
			},
		},
		{
			name:  "case insensitive headers",
			input: "firstname,EMAIL\nAlice,alice@example.com\n",
			want: []model.Recipient{
				{Email: "alice@example.com", FirstName: "Alice"},
			},
		},
		{
			name:  "fields are trimmed",
			input: "FirstName,Email\n Al ,  a@b.com \n",
			want: []model.Recipient{
				{Email: "a@b.com", FirstName: "Al"},
			},
		},
		{
			name:  "rows without at-sign are skipped",
			input: "FirstName,Email\nAlice,notanemail\nBob,bob@example.com\nCarol,\n",
			want: []model.Recipient{
				{Email: "bob@example.com", FirstName: "Bob"},
			},
		},
		{
			name:  "utf8 bom on header",
			input: "\ufeffFirstName,Email\nAlice,alice@example.com\n",
			want: []model.Recipient{
				{Email: "alice@example.com", FirstName: "Alice"},
			},
		},
		{
			name:  "extra columns ignored",
			input: "Company,Email,FirstName\nAcme,alice@example.com,Alice\n",
			want: []model.Recipient{
				{Email: "alice@example.com", FirstName: "Alice"},
			},
		},
		{
			name:  "short rows skipped",
			input: "FirstName,Email\nAlice\nBob,bob@example.com\n",
			want: []model.Recipient{
				{Email: "bob@example.com", FirstName: "Bob"},
			},
		},
		{
			name:  "header only yields empty set",
			input: "FirstName,Email\n",
			want:  nil,
		},
		{
			name:  "order preserved",
			input: "FirstName,Email\nZed,z@example.com\nAmy,a@example.com\n",
			want: []model.Recipient{
				{Email: "z@example.com", FirstName: "Zed"},
				{Email: "a@example.com", FirstName: "Amy"},
			},
		},
	}

	src := NewCSVSource(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := src.Parse(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCSVSourceSchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		missing []string
	}{
		{
			name:    "missing email column",
			input:   "FirstName,LastName\nAlice,Smith\n",
			missing: []string{"Email"},
		},
		{
			name:    "missing firstname column",
			input:   "Email\nalice@example.com\n",
			missing: []string{"FirstName"},
		},
		{
			name:    "empty file",
			input:   "",
			missing: []string{"FirstName", "Email"},
		},
	}

	src := NewCSVSource(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := src.Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			var schemaErr *SchemaError
			require.ErrorAs(t, err, &schemaErr)
			assert.Equal(t, tt.missing, schemaErr.Missing)
		})
	}
}

func TestCSVSourceMalformed(t *testing.T) {
	src := NewCSVSource(nil)
	_, err := src.Parse(strings.NewReader("FirstName,Email\n\"unterminated,alice@example.com\n"))
	require.Error(t, err)
	var srcErr *SourceError
	assert.ErrorAs(t, err, &srcErr)
}
