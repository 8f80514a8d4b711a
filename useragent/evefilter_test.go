package useragent

import (
	"testing"

	"github.com/jasonish/evecore/eve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const firefox = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"

func TestFilter(t *testing.T) {
	filter := NewEveUserAgentFilter()

	event := eve.EveEvent{
		"event_type": "http",
		"http": map[string]interface{}{
			"http_user_agent": firefox,
		},
	}
	filter.Filter(event)
	ua, ok := event.GetMap("http")["user_agent"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "Firefox", ua["name"])
	assert.Equal(t, "115", ua["major"])
	assert.Equal(t, "Linux", ua["os_name"])

	// Second lookup comes from the cache.
	assert.Equal(t, 1, filter.cache.Len())
	other := eve.EveEvent{
		"event_type": "http",
		"http": map[string]interface{}{
			"http_user_agent": firefox,
		},
	}
	filter.Filter(other)
	assert.Equal(t, ua, other.GetMap("http")["user_agent"])
	assert.Equal(t, 1, filter.cache.Len())
}

func TestFilterIgnoresOtherEvents(t *testing.T) {
	filter := NewEveUserAgentFilter()
	event := eve.EveEvent{"event_type": "dns"}
	filter.Filter(event)
	assert.Nil(t, event["http"])
}
