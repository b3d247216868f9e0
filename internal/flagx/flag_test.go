package flagx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		allowed  []string
		expected []string
	}{
		{
			name:     "separate value kept",
			args:     []string{"-w", "ws://relay:8080", "-x", "ignored"},
			allowed:  []string{"-w"},
			expected: []string{"-w", "ws://relay:8080"},
		},
		{
			name:     "equals form kept",
			args:     []string{"--config=conf.json", "-other=1"},
			allowed:  []string{"--config"},
			expected: []string{"--config=conf.json"},
		},
		{
			name:     "flag without value",
			args:     []string{"-v", "-w", "url"},
			allowed:  []string{"-v"},
			expected: []string{"-v"},
		},
		{
			name:     "nothing allowed",
			args:     []string{"-a", "1", "-b", "2"},
			allowed:  nil,
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FilterArgs(tt.args, tt.allowed))
		})
	}
}

func TestJsonConfigFlags(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"cmd", "-c", "conf.json"}
	assert.Equal(t, "conf.json", JsonConfigFlags())

	os.Args = []string{"cmd", "-config=other.json"}
	assert.Equal(t, "other.json", JsonConfigFlags())

	os.Args = []string{"cmd"}
	assert.Empty(t, JsonConfigFlags())
}
