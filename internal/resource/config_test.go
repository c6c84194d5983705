package resource

import (
	"testing"

	"github.com/malbeclabs/coapd/internal/coap"
	"github.com/stretchr/testify/require"
)

func TestResource_ParseManifest_DecodesEntries(t *testing.T) {
	t.Parallel()

	data := []byte(`
resources:
  - path: /sensors/temp
    rt: temperature
    if: sensor
    title: Temperature sensor
    methods: [GET]
    response: "21.5"
  - path: /sensors/humidity
    rt: humidity
    methods: [GET, PUT]
    response: "40"
`)
	m, err := ParseManifest(data)
	require.NoError(t, err)
	require.Len(t, m.Resources, 2)

	require.Equal(t, "/sensors/temp", m.Resources[0].Path)
	require.Equal(t, Attrs{ResourceType: "temperature", Interface: "sensor", Title: "Temperature sensor"}, m.Resources[0].Attrs())
	require.Equal(t, []string{"GET"}, m.Resources[0].Methods)
	require.Equal(t, "21.5", m.Resources[0].Response)

	require.Equal(t, "/sensors/humidity", m.Resources[1].Path)
	require.Equal(t, Attrs{ResourceType: "humidity"}, m.Resources[1].Attrs())
	require.Equal(t, []string{"GET", "PUT"}, m.Resources[1].Methods)
}

func TestResource_ParseManifest_RejectsMalformedYAML(t *testing.T) {
	t.Parallel()

	_, err := ParseManifest([]byte("resources: [this is not a list of mappings"))
	require.Error(t, err)
}

func TestResource_ParseManifest_EmptyDocumentIsEmptyManifest(t *testing.T) {
	t.Parallel()

	m, err := ParseManifest(nil)
	require.NoError(t, err)
	require.Empty(t, m.Resources)
}

func TestResource_ManifestEntry_HandlersOnlyFillsDeclaredMethods(t *testing.T) {
	t.Parallel()

	e := ManifestEntry{Path: "/a", Methods: []string{"get", "PUT"}, Response: "ok"}
	table := e.Handlers()

	require.NotNil(t, table[coap.CodeGET])
	require.NotNil(t, table[coap.CodePUT])
	require.Nil(t, table[coap.CodePOST])
	require.Nil(t, table[coap.CodeDELETE])
}

func TestResource_ManifestEntry_HandlersIgnoresUnknownMethodNames(t *testing.T) {
	t.Parallel()

	e := ManifestEntry{Path: "/a", Methods: []string{"PATCH"}, Response: "ok"}
	table := e.Handlers()
	for _, h := range table {
		require.Nil(t, h)
	}
}

func TestResource_Registry_LoadManifestRegistersEveryEntry(t *testing.T) {
	t.Parallel()

	m := &Manifest{Resources: []ManifestEntry{
		{Path: "/sensors/temp", ResourceType: "temperature", Methods: []string{"GET"}, Response: "21.5"},
		{Path: "/sensors/humidity", ResourceType: "humidity", Methods: []string{"GET"}, Response: "40"},
	}}

	reg := NewRegistry()
	reg.LoadManifest(m)

	res, ok := reg.Lookup(coap.HashURIPath(coap.SplitURIPath("/sensors/temp")))
	require.True(t, ok)
	require.Equal(t, "/sensors/temp", res.Path)
	require.NotNil(t, res.Handler[coap.CodeGET])

	_, ok = reg.Lookup(coap.HashURIPath(coap.SplitURIPath("/sensors/humidity")))
	require.True(t, ok)
}
