package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameMapping_TargetsNeverRewritten(t *testing.T) {
	// "Alipay Balance" itself matches the alipay rule; as a known target
	// it must survive a second pass untouched.
	m, err := NewNameMapping(nil, []MappingRule{
		{Pattern: `(?i)alipay`, Target: "Alipay Balance", Sort: 10},
	})
	require.NoError(t, err)

	out, err := m.Map("my alipay account")
	require.NoError(t, err)
	assert.Equal(t, "Alipay Balance", out)

	again, err := m.Map(out)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestNameMapping_ExactBeforeRegex(t *testing.T) {
	m, err := NewNameMapping(
		map[string]string{"alipay huabei": "Huabei Credit"},
		[]MappingRule{{Pattern: `alipay`, Target: "Alipay Balance", Sort: 10}},
	)
	require.NoError(t, err)

	out, err := m.Map("alipay huabei")
	require.NoError(t, err)
	assert.Equal(t, "Huabei Credit", out)
}

func TestNewNameMapping_BadPattern(t *testing.T) {
	_, err := NewNameMapping(nil, []MappingRule{{Pattern: `(`, Target: "x"}})
	assert.Error(t, err)
}
