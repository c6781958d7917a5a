package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeniority(t *testing.T) {
	tests := []struct {
		input string
		want  Seniority
	}{
		{"c_suite", SeniorityCSuite},
		{"C-Suite", SeniorityCSuite},
		{"executive", SeniorityCSuite},
		{"vp", SeniorityVP},
		{"Vice President", SeniorityVP},
		{"director", SeniorityDirector},
		{"manager", SeniorityManager},
		{"ic", SeniorityIC},
		{"individual contributor", SeniorityIC},
		{"", SeniorityUnknown},
		{"wizard", SeniorityUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseSeniority(tt.input), "input %q", tt.input)
	}
}

func TestInferSeniority(t *testing.T) {
	tests := []struct {
		title string
		want  Seniority
	}{
		{"Chief Executive Officer", SeniorityCSuite},
		{"CEO", SeniorityCSuite},
		{"Co-Founder & CTO", SeniorityCSuite},
		{"Owner", SeniorityCSuite},
		{"VP of Engineering", SeniorityVP},
		{"SVP Marketing", SeniorityVP},
		{"Director of Sales", SeniorityDirector},
		{"Head of Growth", SeniorityDirector},
		{"Engineering Manager", SeniorityManager},
		{"Team Lead", SeniorityManager},
		{"Software Engineer", SeniorityIC},
		{"Account Executive", SeniorityIC},
		{"", SeniorityUnknown},
		{"   ", SeniorityUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InferSeniority(tt.title), "title %q", tt.title)
	}
}

func TestInferSeniority_FirstRuleWins(t *testing.T) {
	// A title matching both c-suite and manager rules buckets at the top.
	assert.Equal(t, SeniorityCSuite, InferSeniority("Founder and General Manager"))
	// "Head of" outranks "manager" in the ordered table.
	assert.Equal(t, SeniorityDirector, InferSeniority("Head of Engineering Management"))
}

func TestSeniorityString(t *testing.T) {
	assert.Equal(t, "c_suite", SeniorityCSuite.String())
	assert.Equal(t, "unknown", SeniorityUnknown.String())
	assert.Equal(t, "ic", SeniorityIC.String())
}

func TestLoadSeniorityRules(t *testing.T) {
	rules, err := LoadSeniorityRules([]byte(`
- level: c_suite
  pattern: '\b(chief|principal)\b'
- level: manager
  pattern: '\bwrangler\b'
`))
	require.NoError(t, err)
	require.Len(t, rules, 2)

	e := NewEngine(Config{}, WithSeniorityRules(rules))
	assert.Equal(t, SeniorityCSuite, inferWithRules("Principal Scientist", e.rules))
	assert.Equal(t, SeniorityManager, inferWithRules("Cat Wrangler", e.rules))
	assert.Equal(t, SeniorityIC, inferWithRules("VP of Engineering", e.rules))
}

func TestLoadSeniorityRules_Errors(t *testing.T) {
	_, err := LoadSeniorityRules([]byte(`- level: emperor
  pattern: 'x'`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown level")

	_, err = LoadSeniorityRules([]byte(`- level: vp
  pattern: '['`))
	require.Error(t, err)

	_, err = LoadSeniorityRules([]byte(`{not yaml`))
	require.Error(t, err)
}
