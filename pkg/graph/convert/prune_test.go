package convert

import (
	"encoding/json"
	"testing"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const swaggerFixture = `{
  "swagger": "2.0",
  "info": {"title": "Kubernetes", "version": "v1.29.0"},
  "paths": {
    "/api/v1/pods": {},
    "/apis/apps/v1/deployments": {},
    "/apis/crownlabs.polito.it/v1alpha2/instances": {},
    "/apis/crownlabs.polito.it/v1alpha2/namespaces/{namespace}/instances/{name}": {}
  },
  "definitions": {
    "io.k8s.api.core.v1.Pod": {
      "description": "Pod is a collection of containers.",
      "x-kubernetes-group-version-kind": [
        {"group": "", "version": "v1", "kind": "Pod"}
      ]
    },
    "io.k8s.api.apps.v1.Deployment": {
      "description": "Deployment enables declarative updates.",
      "x-kubernetes-group-version-kind": [
        {"group": "apps", "version": "v1", "kind": "Deployment"}
      ]
    },
    "it.polito.crownlabs.v1alpha2.Instance": {
      "description": "Instance is a running environment.",
      "x-kubernetes-group-version-kind": [
        {"group": "crownlabs.polito.it", "version": "v1alpha2", "kind": "Instance"}
      ]
    },
    "io.k8s.apimachinery.pkg.apis.meta.v1.ObjectMeta": {
      "description": "Standard object metadata."
    }
  }
}`

func loadFixture(t *testing.T) *openapi2.T {
	t.Helper()
	var doc openapi2.T
	require.NoError(t, json.Unmarshal([]byte(swaggerFixture), &doc))
	return &doc
}

func TestPruneKeepsOnlyAllowedGroups(t *testing.T) {
	doc := loadFixture(t)

	stats := Prune(doc, []string{"crownlabs.polito.it"})

	assert.Equal(t, 2, stats.PathsKept)
	assert.Equal(t, 2, stats.PathsDropped)
	assert.Contains(t, doc.Paths, "/apis/crownlabs.polito.it/v1alpha2/instances")
	assert.NotContains(t, doc.Paths, "/api/v1/pods")
	assert.NotContains(t, doc.Paths, "/apis/apps/v1/deployments")

	assert.Contains(t, doc.Definitions, "it.polito.crownlabs.v1alpha2.Instance")
	// Definitions without a group-version-kind marker survive; resource
	// definitions reference them.
	assert.Contains(t, doc.Definitions, "io.k8s.apimachinery.pkg.apis.meta.v1.ObjectMeta")
	assert.NotContains(t, doc.Definitions, "io.k8s.api.apps.v1.Deployment")
	assert.NotContains(t, doc.Definitions, "io.k8s.api.core.v1.Pod")
}

func TestPruneCoreGroupIsEmptyString(t *testing.T) {
	doc := loadFixture(t)

	Prune(doc, []string{""})

	assert.Contains(t, doc.Paths, "/api/v1/pods")
	assert.NotContains(t, doc.Paths, "/apis/apps/v1/deployments")
	assert.Contains(t, doc.Definitions, "io.k8s.api.core.v1.Pod")
	assert.NotContains(t, doc.Definitions, "it.polito.crownlabs.v1alpha2.Instance")
}

func TestPruneEmptyAllowListDropsEverythingMarked(t *testing.T) {
	doc := loadFixture(t)

	stats := Prune(doc, nil)

	assert.Equal(t, 0, stats.PathsKept)
	assert.Empty(t, doc.Paths)
	assert.Equal(t, []string{"io.k8s.apimachinery.pkg.apis.meta.v1.ObjectMeta"}, definitionNames(doc))
}

func definitionNames(doc *openapi2.T) []string {
	names := make([]string, 0, len(doc.Definitions))
	for name := range doc.Definitions {
		names = append(names, name)
	}
	return names
}

func TestFindDefinition(t *testing.T) {
	doc := loadFixture(t)

	def, ok := FindDefinition(doc, "crownlabs.polito.it", "v1alpha2", "Instance")
	require.True(t, ok)
	assert.Equal(t, "Instance is a running environment.", def.Description)

	_, ok = FindDefinition(doc, "crownlabs.polito.it", "v1alpha2", "Template")
	assert.False(t, ok)

	_, ok = FindDefinition(nil, "", "v1", "Pod")
	assert.False(t, ok)
}
