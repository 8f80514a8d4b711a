package eve

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const alertEvent = `{"timestamp":"2016-02-11T08:07:42.815726-0600","flow_id":140467580480416,"in_iface":"eth1","event_type":"alert","src_ip":"72.20.52.30","src_port":25565,"dest_ip":"10.16.1.236","dest_port":58686,"proto":"TCP","alert":{"action":"allowed","gid":1,"signature_id":2021701,"rev":1,"signature":"ET GAMES MINECRAFT Server response inbound","category":"Potential Corporate Privacy Violation","severity":1},"payload":"9qWANL1DeyKyeauJP7XSOBN+Wicwljhbo1b3CggiJQ7NyXWekHge","payload_printable":"...4.C{\".y..?..8.~Z'0.8[.V.\n.\"%...u..x.","stream":0,"packet":"rLwye+0ZABUXDQb3CABFGABbIh9AADQGnDhIFDQeChAB7GPd5T4vIjw6OmylI4AYAPY3ngAAAQEICiuX0AUzPUOu9qWANL1DeyKyeauJP7XSOBN+Wicwljhbo1b3CggiJQ7NyXWekHge","host":"home-firewall"}`

func TestNewEveEventFromString(t *testing.T) {
	r := require.New(t)

	event, err := NewEveEventFromString(alertEvent)
	r.Nil(err)

	expected, err := time.Parse(time.RFC3339Nano, "2016-02-11T08:07:42.815726-06:00")
	r.Nil(err)
	r.True(expected.Equal(event.Timestamp()))

	r.Equal("alert", event.EventType())
	r.Equal("home-firewall", event.Host())
	sid, ok := event.GetAlertSignatureId()
	r.True(ok)
	r.Equal(uint64(2021701), sid)

	// Tags are created if missing.
	r.Equal([]string{}, event.Tags())
}

func TestNewEveEventBadTimestamp(t *testing.T) {
	_, err := NewEveEventFromString(`{"timestamp": "yesterday", "event_type": "alert"}`)
	assert.NotNil(t, err)

	_, err = NewEveEventFromString(`{"event_type": "alert"}`)
	assert.NotNil(t, err)

	_, err = NewEveEventFromString(`not json`)
	assert.NotNil(t, err)
}

func TestMarshalSkipsInternalKeys(t *testing.T) {
	event, err := NewEveEventFromString(alertEvent)
	require.Nil(t, err)
	buf, err := json.Marshal(event)
	require.Nil(t, err)
	assert.False(t, strings.Contains(string(buf), parsedTimestampKey))
}

func TestAddTagDedupes(t *testing.T) {
	event := EveEvent{}
	event.AddTag("a")
	event.AddTag("b")
	event.AddTag("a")
	assert.Equal(t, []string{"a", "b"}, event.Tags())
	assert.True(t, event.HasTag("b"))

	event.RemoveTag("a")
	assert.Equal(t, []string{"b"}, event.Tags())
}

func TestFullText(t *testing.T) {
	event, err := NewEveEventFromString(alertEvent)
	require.Nil(t, err)
	event["rule"] = "alert tcp any any -> any any (sid:1;)"
	event["http"] = map[string]interface{}{
		"hostname":                     "www.example.com",
		"http_response_body":           "SGVsbG8=",
		"http_response_body_printable": "..<html>..ab",
	}

	text := FullText(event)
	tokens := strings.Fields(text)

	assert.Contains(t, tokens, "72.20.52.30")
	assert.Contains(t, tokens, "2021701")
	assert.Contains(t, tokens, "www.example.com")
	assert.Contains(t, tokens, "MINECRAFT")
	assert.Contains(t, tokens, "html")
	assert.Contains(t, tokens, "ab")

	assert.NotContains(t, text, "rLwye")
	assert.NotContains(t, text, "9qWANL1")
	assert.NotContains(t, text, "SGVsbG8=")
	assert.NotContains(t, text, "sid:1")

	// Only the word-like runs of the printable payload are indexed.
	assert.NotContains(t, text, "{")
	assert.NotContains(t, tokens, "C")
}

func TestDnsRrnamesForRdata(t *testing.T) {
	v2, err := NewEveEventFromString(`{"timestamp":"2024-01-01T00:00:00Z","event_type":"dns","dns":{"type":"answer","rrname":"example.com","answers":[{"rrname":"example.com","rrtype":"A","rdata":"1.1.1.1"},{"rrname":"other.com","rrtype":"A","rdata":"2.2.2.2"}]}}`)
	require.Nil(t, err)
	assert.Equal(t, []string{"example.com"}, DnsRrnamesForRdata(v2, "1.1.1.1"))
	assert.Empty(t, DnsRrnamesForRdata(v2, "3.3.3.3"))
	assert.True(t, IsDnsResponse(v2))

	v1, err := NewEveEventFromString(`{"timestamp":"2024-01-01T00:00:00Z","event_type":"dns","dns":{"type":"answer","rrname":"old.example.com","rdata":"1.1.1.1"}}`)
	require.Nil(t, err)
	assert.Equal(t, []string{"old.example.com"}, DnsRrnamesForRdata(v1, "1.1.1.1"))
}
