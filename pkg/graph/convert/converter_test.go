package convert

import (
	"log/slog"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	k8sschema "k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	dynamicfake "k8s.io/client-go/dynamic/fake"

	"qlkube/pkg/authz"
	"qlkube/pkg/graph/schema"
)

var instanceGVR = k8sschema.GroupVersionResource{
	Group:    "crownlabs.polito.it",
	Version:  "v1alpha2",
	Resource: "instances",
}

func newInstance(namespace, name string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "crownlabs.polito.it/v1alpha2",
		"kind":       "Instance",
		"metadata": map[string]interface{}{
			"namespace": namespace,
			"name":      name,
		},
		"spec": map[string]interface{}{
			"running": true,
		},
	}}
}

type fakeProvider struct {
	cli    dynamic.Interface
	tokens []string
}

func (f *fakeProvider) DynamicClientForToken(token string) (dynamic.Interface, error) {
	f.tokens = append(f.tokens, token)
	return f.cli, nil
}

func newConvertedSchema(t *testing.T, objects ...runtime.Object) (graphql.Schema, *fakeProvider) {
	t.Helper()

	scheme := runtime.NewScheme()
	cli := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme,
		map[k8sschema.GroupVersionResource]string{
			instanceGVR: "InstanceList",
		}, objects...)
	provider := &fakeProvider{cli: cli}

	converter, err := NewResourceConverter(provider, loadFixture(t), []Resource{
		{Label: "instance", GVR: instanceGVR, Kind: "Instance"},
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	b := schema.NewBuilder()
	require.NoError(t, converter.Contribute(b))
	compiled, err := b.Build()
	require.NoError(t, err)
	return compiled, provider
}

func TestNewResourceConverterValidation(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	provider := &fakeProvider{}
	resources := []Resource{{Label: "instance", GVR: instanceGVR, Kind: "Instance"}}

	_, err := NewResourceConverter(nil, nil, resources, logger)
	assert.Error(t, err)

	_, err = NewResourceConverter(provider, nil, nil, logger)
	assert.Error(t, err)

	_, err = NewResourceConverter(provider, nil, resources, nil)
	assert.Error(t, err)

	_, err = NewResourceConverter(provider, nil, []Resource{{Label: "instance"}}, logger)
	assert.Error(t, err)

	// The OpenAPI document is optional.
	_, err = NewResourceConverter(provider, nil, resources, logger)
	assert.NoError(t, err)
}

func TestGetQueryReturnsResource(t *testing.T) {
	compiled, provider := newConvertedSchema(t, newInstance("ns1", "inst1"))

	result := graphql.Do(graphql.Params{
		Schema:        compiled,
		RequestString: `{ instance(name: "inst1", namespace: "ns1") { kind metadata { name namespace } spec } }`,
		Context:       authz.WithToken(t.Context(), "user-token"),
	})
	require.Empty(t, result.Errors)

	data := result.Data.(map[string]interface{})["instance"].(map[string]interface{})
	assert.Equal(t, "Instance", data["kind"])
	metadata := data["metadata"].(map[string]interface{})
	assert.Equal(t, "inst1", metadata["name"])
	assert.Equal(t, "ns1", metadata["namespace"])
	spec := data["spec"].(map[string]interface{})
	assert.Equal(t, true, spec["running"])

	// The read ran with the caller's token, not the gateway's.
	assert.Equal(t, []string{"user-token"}, provider.tokens)
}

func TestGetQueryMissingResourceErrors(t *testing.T) {
	compiled, _ := newConvertedSchema(t)

	result := graphql.Do(graphql.Params{
		Schema:        compiled,
		RequestString: `{ instance(name: "ghost", namespace: "ns1") { kind } }`,
		Context:       authz.WithToken(t.Context(), "user-token"),
	})
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Message, "not found")
}

func TestListQueryScopesByNamespace(t *testing.T) {
	compiled, _ := newConvertedSchema(t,
		newInstance("ns1", "a"),
		newInstance("ns1", "b"),
		newInstance("ns2", "c"),
	)

	scoped := graphql.Do(graphql.Params{
		Schema:        compiled,
		RequestString: `{ instanceList(namespace: "ns1") { metadata { name } } }`,
		Context:       authz.WithToken(t.Context(), "user-token"),
	})
	require.Empty(t, scoped.Errors)
	assert.Len(t, scoped.Data.(map[string]interface{})["instanceList"], 2)

	all := graphql.Do(graphql.Params{
		Schema:        compiled,
		RequestString: `{ instanceList { metadata { name } } }`,
		Context:       authz.WithToken(t.Context(), "user-token"),
	})
	require.Empty(t, all.Errors)
	assert.Len(t, all.Data.(map[string]interface{})["instanceList"], 3)
}

func TestQueriesRequireToken(t *testing.T) {
	compiled, provider := newConvertedSchema(t, newInstance("ns1", "inst1"))

	result := graphql.Do(graphql.Params{
		Schema:        compiled,
		RequestString: `{ instance(name: "inst1", namespace: "ns1") { kind } }`,
		Context:       t.Context(),
	})
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Message, "authorization token")
	assert.Empty(t, provider.tokens)
}

func TestContributeUsesSwaggerDescriptions(t *testing.T) {
	provider := &fakeProvider{}
	converter, err := NewResourceConverter(provider, loadFixture(t), []Resource{
		{Label: "instance", GVR: instanceGVR, Kind: "Instance"},
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	b := schema.NewBuilder()
	require.NoError(t, converter.Contribute(b))

	obj, ok := b.Object("Instance")
	require.True(t, ok)
	assert.Equal(t, "Instance is a running environment.", obj.Description())

	// A second contribution collides on type and field names.
	assert.Error(t, converter.Contribute(b))
}
