package rules

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/jasonish/evecore/eve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRules = `alert ip any any -> any any (msg:"Test rule one"; sid:1000001; rev:1;)
alert tcp any any -> any 80 (msg:"Test rule two"; sid:1000002; rev:1;)
alert ip any any -> any any (msg:"Duplicate"; sid:1000001; rev:2;)
`

func TestRuleMap(t *testing.T) {
	dir, err := ioutil.TempDir("", "rules")
	require.Nil(t, err)
	defer os.RemoveAll(dir)
	require.Nil(t, ioutil.WriteFile(filepath.Join(dir, "test.rules"), []byte(testRules), 0644))
	require.Nil(t, ioutil.WriteFile(filepath.Join(dir, "ignored.txt"), []byte(testRules), 0644))

	ruleMap := NewRuleMap([]string{dir})
	assert.Equal(t, 2, ruleMap.Len())

	rule := ruleMap.FindById(1000001)
	require.NotNil(t, rule)
	assert.Contains(t, rule.Raw, "Test rule one")
	assert.Nil(t, ruleMap.FindById(1))

	event := eve.EveEvent{
		"event_type": "alert",
		"alert":      map[string]interface{}{"signature_id": 1000002},
	}
	ruleMap.Filter(event)
	assert.Contains(t, event["rule"], "Test rule two")

	// Glob paths.
	ruleMap = NewRuleMap([]string{filepath.Join(dir, "*.rules")})
	assert.Equal(t, 2, ruleMap.Len())
}
