package importer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleDocument = `{
  "apps": {
    "http": {
      "servers": {
        "srv0": {
          "listen": [":80", ":443"],
          "automatic_https": {"skip": ["plain.example.com"]},
          "routes": [
            {
              "match": [{"host": ["app.example.com"]}],
              "handle": [
                {
                  "handler": "reverse_proxy",
                  "upstreams": [{"dial": "10.0.0.5:3000"}],
                  "headers": {"request": {"set": {"Upgrade": ["{http.request.header.Upgrade}"]}}}
                }
              ],
              "terminal": true
            },
            {
              "match": [{"host": ["secure.example.com"]}],
              "handle": [
                {
                  "handler": "subroute",
                  "routes": [
                    {
                      "handle": [
                        {
                          "handler": "reverse_proxy",
                          "transport": {"protocol": "http", "tls": {}},
                          "upstreams": [{"dial": "10.0.0.6:8443"}]
                        }
                      ]
                    }
                  ]
                }
              ]
            },
            {
              "match": [{"host": ["plain.example.com"]}],
              "handle": [
                {"handler": "reverse_proxy", "upstreams": [{"dial": "10.0.0.7:8080"}]}
              ]
            },
            {
              "match": [{"path": ["/health"]}],
              "handle": [{"handler": "static_response", "status_code": 200}]
            }
          ]
        }
      }
    }
  }
}`

func TestParseConfig(t *testing.T) {
	hosts, err := ParseConfig([]byte(sampleDocument))
	require.NoError(t, err)
	require.Len(t, hosts, 3, "routes without host matcher or proxy handler are skipped")

	// Hosts come back sorted by domain.
	require.Equal(t, "app.example.com", hosts[0].DomainNames)
	require.Equal(t, "plain.example.com", hosts[1].DomainNames)
	require.Equal(t, "secure.example.com", hosts[2].DomainNames)

	app := hosts[0]
	require.Equal(t, "http", app.ForwardScheme)
	require.Equal(t, "10.0.0.5", app.ForwardHost)
	require.Equal(t, 3000, app.ForwardPort)
	require.True(t, app.WebsocketSupport)
	require.True(t, app.ForceTLS, "domains not in the skip list force TLS")
	require.True(t, app.Enabled)

	plain := hosts[1]
	require.False(t, plain.ForceTLS, "skip-listed domains do not force TLS")

	secure := hosts[2]
	require.Equal(t, "https", secure.ForwardScheme, "a transport block marks an https upstream")
	require.Equal(t, 8443, secure.ForwardPort)
	require.False(t, secure.WebsocketSupport)
}

func TestParseConfig_Invalid(t *testing.T) {
	_, err := ParseConfig([]byte(`not json`))
	require.Error(t, err)

	_, err = ParseConfig([]byte(`{"apps":{}}`))
	require.Error(t, err, "a document without an http app is not importable")
}

func TestSplitDial(t *testing.T) {
	host, port := splitDial("10.0.0.5:3000")
	require.Equal(t, "10.0.0.5", host)
	require.Equal(t, 3000, port)

	host, port = splitDial("noport")
	require.Equal(t, "noport", host)
	require.Zero(t, port)

	_, port = splitDial("bad:port")
	require.Zero(t, port)
}
