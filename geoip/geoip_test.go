package geoip

import (
	"testing"

	"github.com/jasonish/evecore/eve"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeoIp(t *testing.T) {
	path := FindDbPath()
	if path == "" {
		t.Skip("Failed to find GeoIP database.")
	}

	db, err := NewGeoIpDb("")
	require.Nil(t, err)
	defer db.Close()

	result, err := db.LookupString("149.56.128.130")
	require.Nil(t, err)
	assert.Equal(t, "149.56.128.130", result.Ip)
	assert.NotEmpty(t, result.CountryCode2)
}

func TestIsPrivate(t *testing.T) {
	assert.True(t, IsPrivate("10.1.1.1"))
	assert.True(t, IsPrivate("172.16.0.1"))
	assert.True(t, IsPrivate("192.168.1.1"))
	assert.True(t, IsPrivate("fe80::1"))
	assert.False(t, IsPrivate("8.8.8.8"))
	assert.False(t, IsPrivate("not-an-ip"))
}

type fakeLookup map[string]*GeoIp

func (f fakeLookup) LookupString(addr string) (*GeoIp, error) {
	if gip, ok := f[addr]; ok {
		return gip, nil
	}
	return nil, errors.New("not found")
}

func TestFilter(t *testing.T) {
	filter := NewFilter(fakeLookup{
		"8.8.8.8": {Ip: "8.8.8.8", CountryCode2: "US"},
	})

	event := eve.EveEvent{"src_ip": "10.0.0.1", "dest_ip": "8.8.8.8"}
	filter.Filter(event)
	require.NotNil(t, event["geoip"])
	assert.Equal(t, "US", event["geoip"].(*GeoIp).CountryCode2)

	event = eve.EveEvent{"src_ip": "10.0.0.1", "dest_ip": "1.1.1.1"}
	filter.Filter(event)
	assert.Nil(t, event["geoip"])

	existing := map[string]interface{}{"ip": "x"}
	event = eve.EveEvent{"src_ip": "8.8.8.8", "geoip": existing}
	filter.Filter(event)
	assert.Equal(t, existing, event["geoip"])
}
